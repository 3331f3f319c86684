package logger

import (
	"os"
	"testing"
	"time"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestWithMarketDay(t *testing.T) {
	log := Logger()
	date := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	entry := log.WithMarketDay("PDBC", date)
	if v, ok := entry.Entry.Data["market"]; !ok || v != "PDBC" {
		t.Fatalf("market field not set: %v", entry.Entry.Data)
	}
	if v, ok := entry.Entry.Data["date"]; !ok || v != "2024-03-31" {
		t.Fatalf("date field not set: %v", entry.Entry.Data)
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := os.TempDir() + "/marginflow-test.log"
	defer os.Remove(path)

	log := Logger()
	if err := log.Configure("debug", "text", path, 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
}
