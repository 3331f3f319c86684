package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `marginflow:
  name: "TestApp"
  version: "1.0"
processing:
  target_units:
    - "UPA"
  start_date: "20240101"
  end_date: "20240131"
storage:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Marginflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Marginflow.Name)
	}
	if cfg.Processing.MaxWorkers != 1 {
		t.Errorf("expected default max workers 1, got %d", cfg.Processing.MaxWorkers)
	}
	if cfg.Writer.OutputDir != "output" {
		t.Errorf("expected default output dir, got %s", cfg.Writer.OutputDir)
	}
}

func TestLoadConfigRejectsEmptyUnits(t *testing.T) {
	path := writeTempConfig(t, `marginflow:
  name: "TestApp"
  version: "1.0"
processing:
  start_date: "20240101"
  end_date: "20240131"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for empty target units")
	}
}

func TestDateRangeExplicitWinsOverYears(t *testing.T) {
	cfg := &Config{Processing: ProcessingConfig{
		StartDate: "20240301",
		EndDate:   "20240302",
		Years:     []int{2020},
	}}
	start, end, err := cfg.DateRange()
	if err != nil {
		t.Fatalf("DateRange failed: %v", err)
	}
	if start.Year() != 2024 || end.Year() != 2024 {
		t.Errorf("explicit dates must win over years, got %s..%s", start, end)
	}
}

func TestDateRangeFromYears(t *testing.T) {
	cfg := &Config{Processing: ProcessingConfig{Years: []int{2023, 2021}}}
	start, end, err := cfg.DateRange()
	if err != nil {
		t.Fatalf("DateRange failed: %v", err)
	}
	if !start.Equal(time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start: %s", start)
	}
	if !end.Equal(time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end: %s", end)
	}
}

func TestDateRangeRejectsReversedBounds(t *testing.T) {
	cfg := &Config{Processing: ProcessingConfig{StartDate: "20240201", EndDate: "20240101"}}
	if _, _, err := cfg.DateRange(); err == nil {
		t.Fatalf("expected error for reversed bounds")
	}
}

func TestPathLayouts(t *testing.T) {
	p := PathsConfig{OperatorDir: "/data/i90", IndicatorDir: "/data/ind", ExchangeDir: "/data/omie"}
	date := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	if got := p.OperatorArchive(date); got != "/data/i90/i90_2024/I90DIA_20240305.zip" {
		t.Errorf("unexpected operator archive path: %s", got)
	}
	// The indicator month is not zero padded.
	if got := p.IndicatorFile("634", date); got != "/data/ind/634/634_2024_3.csv" {
		t.Errorf("unexpected indicator path: %s", got)
	}
	if got := p.ExchangeArchive("pdbc", date); got != "/data/omie/pdbc/pdbc_202403.zip" {
		t.Errorf("unexpected exchange archive path: %s", got)
	}
	if got := p.ExchangePriceArchive("marginalpdbc", date); got != "/data/omie/marginalpdbc/marginalpdbc_2024.zip" {
		t.Errorf("unexpected price archive path: %s", got)
	}
	if got := DailyPrefix("pdbc", date); got != "pdbc_20240305" {
		t.Errorf("unexpected daily prefix: %s", got)
	}
	if got := SessionPrefix("pibci", date, 3); got != "pibci_2024030503" {
		t.Errorf("unexpected session prefix: %s", got)
	}
}
