package processor

import (
	"strconv"
	"strings"

	"marginflow/models"
)

// unitColumnCandidates are the header names, in probe order, under which
// the source files publish the programming-unit column. Different report
// vintages and markets use different names for the same thing.
var unitColumnCandidates = []string{
	"UNIDAD DE PROGRAMACIÓN",
	"UNIDAD DE PROGRAMACION",
	"PARTICIPANTE DEL MERCADO",
	"CODIGO",
	"CODUOG",
	"CÓDIGO",
	"UP",
	"UNIDAD",
	"UNIT",
	"UNIDADV",
	"UNIDADC",
}

// promoteHeader turns a raw worksheet grid into a labelled frame: every row
// with an empty first cell is preamble or filler and is dropped, the first
// surviving row becomes the header.
func promoteHeader(f *models.Frame) *models.Frame {
	var kept [][]string
	for _, row := range f.Rows {
		if len(row) > 0 && strings.TrimSpace(row[0]) != "" {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return &models.Frame{}
	}
	header := make([]string, len(kept[0]))
	for i, c := range kept[0] {
		header[i] = sanitizeHeader(c)
	}
	return &models.Frame{Columns: header, Rows: kept[1:]}
}

// sanitizeHeader normalizes a header cell. Spreadsheet readers render
// numeric period headers as floats, so "1.0" comes back as "1".
func sanitizeHeader(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}

// findUnitColumn probes the header for the programming-unit column.
func findUnitColumn(f *models.Frame) (int, bool) {
	for _, cand := range unitColumnCandidates {
		if i := f.ColFold(cand); i >= 0 {
			return i, true
		}
	}
	return -1, false
}

// parseNumber reads a numeric cell, accepting the comma decimal separator
// used by the flat-file feeds. Empty cells are not numbers.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// matchesFilters reports whether a row satisfies every column=value filter.
// A filter naming a column the frame lacks is skipped: report vintages do
// not all publish the same columns, and a filter can only narrow what the
// sheet actually distinguishes.
func matchesFilters(f *models.Frame, row int, filters map[string]string) bool {
	for col, want := range filters {
		i := f.ColFold(col)
		if i < 0 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(f.Cell(row, i)), want) {
			return false
		}
	}
	return true
}
