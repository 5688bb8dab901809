// Package tabular parses heterogeneous government releases (CSV, XLS, XLSX,
// JSON, optionally zipped) into normalized rows and filters them to one
// municipality.
package tabular

import (
	"strconv"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/textnorm"
)

// Row maps normalized column names to raw cell text.
type Row map[string]string

// Frame is an ordered set of columns plus rows.
type Frame struct {
	Columns []string
	Rows    []Row
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Has reports whether col is a column of the frame.
func (f *Frame) Has(col string) bool {
	if f == nil {
		return false
	}
	for _, c := range f.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// FirstPresent returns the first candidate that is a column, or "".
func (f *Frame) FirstPresent(candidates ...string) string {
	for _, c := range candidates {
		if f.Has(c) {
			return c
		}
	}
	return ""
}

// Present returns the candidates that are columns, in candidate order.
func (f *Frame) Present(candidates ...string) []string {
	var out []string
	for _, c := range candidates {
		if f.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Filter returns a frame with the same columns and the rows keep accepts.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	out := &Frame{Columns: f.Columns}
	for _, r := range f.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Head returns at most n rows.
func (f *Frame) Head(n int) []Row {
	if f == nil {
		return nil
	}
	if n > len(f.Rows) {
		n = len(f.Rows)
	}
	return f.Rows[:n]
}

// normalizeHeader maps raw header cells to unique normalized column names.
func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	seen := map[string]int{}
	for i, c := range cells {
		name := textnorm.Column(c)
		if name == "" {
			name = "col_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

// fromRecords builds a frame from a header record and data records.
// Blank rows are dropped; short rows are padded with "".
func fromRecords(header []string, records [][]string) *Frame {
	cols := normalizeHeader(header)
	f := &Frame{Columns: cols}
	for _, rec := range records {
		row := make(Row, len(cols))
		blank := true
		for i, c := range cols {
			v := ""
			if i < len(rec) {
				v = trimCell(rec[i])
			}
			if v != "" {
				blank = false
			}
			row[c] = v
		}
		if !blank {
			f.Rows = append(f.Rows, row)
		}
	}
	return f
}
