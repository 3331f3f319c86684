package reader

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheIndicatorDefensiveCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "634_2024_1.csv")
	csv := "id,geo_id,datetime,value\n634,8741,2024-01-15T00:00:00+01:00,12.5\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write indicator: %v", err)
	}

	c := NewCache()
	defer c.Clear()

	first, err := c.Indicator(path)
	if err != nil {
		t.Fatalf("Indicator failed: %v", err)
	}
	// Mutate the handed-out frame; the cached copy must be unaffected.
	first.Rows[0][3] = "mutated"
	first.Columns[0] = "mutated"

	second, err := c.Indicator(path)
	if err != nil {
		t.Fatalf("Indicator failed: %v", err)
	}
	if second.Cell(0, 3) != "12.5" || second.Columns[0] != "id" {
		t.Errorf("cache handed out a shared frame")
	}
}

func TestCacheClearRereads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "634_2024_1.csv")
	if err := os.WriteFile(path, []byte("id,value\n634,1\n"), 0o644); err != nil {
		t.Fatalf("write indicator: %v", err)
	}

	c := NewCache()
	defer c.Clear()
	if _, err := c.Indicator(path); err != nil {
		t.Fatalf("Indicator failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("id,value\n634,2\n"), 0o644); err != nil {
		t.Fatalf("rewrite indicator: %v", err)
	}
	cached, err := c.Indicator(path)
	if err != nil {
		t.Fatalf("Indicator failed: %v", err)
	}
	if cached.Cell(0, 1) != "1" {
		t.Errorf("expected the cached table before Clear")
	}

	c.Clear()
	fresh, err := c.Indicator(path)
	if err != nil {
		t.Fatalf("Indicator failed: %v", err)
	}
	if fresh.Cell(0, 1) != "2" {
		t.Errorf("Clear must drop cached tables")
	}
}

func TestCacheMissingOperatorArchive(t *testing.T) {
	c := NewCache()
	defer c.Clear()
	f, err := c.OperatorSheet(filepath.Join(t.TempDir(), "absent.zip"), "I90DIA05")
	if err != nil {
		t.Fatalf("missing archive must not error: %v", err)
	}
	if !f.Empty() {
		t.Errorf("expected empty frame")
	}
}
