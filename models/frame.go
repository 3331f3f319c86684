package models

import "strings"

// Frame is an untyped tabular slice of a source file: an ordered column list
// and string cells. Readers produce Frames; the extractors transform them into
// ObservationRows. Operator workbook sheets are delivered with a nil Columns
// slice because their header row sits somewhere inside the grid and is
// promoted by the extractor.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the frame holds no data rows.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Rows) == 0
}

// Col returns the index of the named column, or -1 when absent.
func (f *Frame) Col(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ColFold is Col with case-insensitive matching.
func (f *Frame) ColFold(name string) int {
	for i, c := range f.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, col), tolerating ragged rows.
func (f *Frame) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(f.Rows) {
		return ""
	}
	r := f.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// Clone returns a deep copy. The read-through cache hands out clones so one
// market's extraction can never mutate a table another market will read.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return &Frame{}
	}
	c := &Frame{}
	if f.Columns != nil {
		c.Columns = append([]string(nil), f.Columns...)
	}
	if f.Rows != nil {
		c.Rows = make([][]string, len(f.Rows))
		for i, r := range f.Rows {
			c.Rows[i] = append([]string(nil), r...)
		}
	}
	return c
}
