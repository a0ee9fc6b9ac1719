package table

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Table is a rectangular dataset held in memory: one header row and string cells.
// Rows are padded to the header width by the readers in this package.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the first header cell equal to name.
func (t *Table) Index(name string) (int, bool) {
	if t == nil {
		return -1, false
	}
	for i, h := range t.Header {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the value at (row, col), or "" when the row is short.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]string, error) {
	idx, ok := t.Index(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found in %s", name, t.displayName())
	}
	out := make([]string, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Cell(i, idx)
	}
	return out, nil
}

// Clone returns a deep copy so callers can trim or coerce without touching the original.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	cp := &Table{Name: t.Name, Header: append([]string(nil), t.Header...)}
	cp.Rows = make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		cp.Rows[i] = append([]string(nil), r...)
	}
	return cp
}

func (t *Table) displayName() string {
	if t.Name == "" {
		return "table"
	}
	return t.Name
}

// Options selects how Open reads a file.
type Options struct {
	CSV CSVOptions
	// XLSX sheet selection; SheetIndex is 1-based and used when SheetName is empty.
	SheetName  string
	SheetIndex int
}

// Open reads a CSV/TSV or XLSX file into a Table, choosing the reader by extension.
func Open(path string, opt Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, opt.SheetName, opt.SheetIndex)
	case ".csv", ".tsv", ".txt":
		return ReadCSV(path, opt.CSV)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
}

// pad extends rec to n cells.
func pad(rec []string, n int) []string {
	if len(rec) >= n {
		return rec
	}
	tmp := make([]string, n)
	copy(tmp, rec)
	return tmp
}
