package processor

import (
	"testing"

	"marginflow/models"
)

func TestPromoteHeader(t *testing.T) {
	raw := &models.Frame{Rows: [][]string{
		{"", "Liquidaciones del mercado"},
		{"", ""},
		{"Unidad de Programación", "Sentido", "1.0", "2.0"},
		{"UPA", "Subir", "10", "20"},
	}}
	f := promoteHeader(raw)
	if len(f.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(f.Columns))
	}
	if f.Columns[2] != "1" || f.Columns[3] != "2" {
		t.Errorf("float-like headers must be sanitized, got %q %q", f.Columns[2], f.Columns[3])
	}
	if len(f.Rows) != 1 || f.Cell(0, 0) != "UPA" {
		t.Errorf("data rows must follow the promoted header")
	}
}

func TestPromoteHeaderAllPreamble(t *testing.T) {
	raw := &models.Frame{Rows: [][]string{{"", "x"}, {"", "y"}}}
	if f := promoteHeader(raw); !f.Empty() {
		t.Errorf("all-preamble grid must promote to an empty frame")
	}
}

func TestPromoteHeaderDropsInteriorBlankRows(t *testing.T) {
	raw := &models.Frame{Rows: [][]string{
		{"", "Liquidaciones del mercado"},
		{"Unidad de Programación", "1"},
		{"UPA", "10"},
		{"", ""},
		{"UPB", "20"},
	}}
	f := promoteHeader(raw)
	if len(f.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(f.Rows))
	}
	if f.Cell(0, 0) != "UPA" || f.Cell(1, 0) != "UPB" {
		t.Errorf("blank-keyed rows must be dropped wherever they appear, got %q %q", f.Cell(0, 0), f.Cell(1, 0))
	}
}

func TestFindUnitColumn(t *testing.T) {
	f := &models.Frame{Columns: []string{"Sentido", "codigo", "00-01"}}
	i, ok := findUnitColumn(f)
	if !ok || i != 1 {
		t.Fatalf("expected unit column at 1, got %d (%v)", i, ok)
	}
	f = &models.Frame{Columns: []string{"Sentido", "00-01"}}
	if _, ok := findUnitColumn(f); ok {
		t.Errorf("no candidate present, expected no match")
	}
	// The accented variant is its own candidate: case folding does not
	// remove the accent, so CODIGO alone would miss it.
	f = &models.Frame{Columns: []string{"Sentido", "Código"}}
	if i, ok := findUnitColumn(f); !ok || i != 1 {
		t.Errorf("accented Código header must be found, got %d (%v)", i, ok)
	}
	f = &models.Frame{Columns: []string{"Participante del Mercado", "1"}}
	if i, ok := findUnitColumn(f); !ok || i != 0 {
		t.Errorf("market-participant header must be found, got %d (%v)", i, ok)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{"12,5", 12.5, true},
		{" -3 ", -3, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumber(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("parseNumber(%q) = %v, %v; expected %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestMatchesFilters(t *testing.T) {
	f := &models.Frame{
		Columns: []string{"Sentido", "Redespacho"},
		Rows:    [][]string{{"Subir", "RR"}, {"Bajar", "RR"}},
	}
	filters := map[string]string{"Sentido": "Subir", "Redespacho": "RR"}
	if !matchesFilters(f, 0, filters) {
		t.Errorf("row 0 should match")
	}
	if matchesFilters(f, 1, filters) {
		t.Errorf("row 1 should not match")
	}
	// Older sheet vintages lack some filter columns; a filter it cannot
	// evaluate must not reject the row.
	if !matchesFilters(f, 0, map[string]string{"Sentido": "Subir", "Tipo": "RR"}) {
		t.Errorf("a filter on a missing column must be skipped, not fail the row")
	}
	bare := &models.Frame{Columns: []string{"Unidad"}, Rows: [][]string{{"UPA"}}}
	if !matchesFilters(bare, 0, map[string]string{"Sentido": "Subir"}) {
		t.Errorf("a frame without the filter column must pass the row through")
	}
}
