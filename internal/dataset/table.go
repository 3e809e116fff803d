// Package dataset provides the in-memory table model shared by every pipeline
// stage. Cells are kept as text; an empty cell is a missing value.
package dataset

import (
	"fmt"
	"strings"

	"github.com/ortho-predict/internal/domain"
)

// Table is a named, column-ordered set of text rows.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ColumnCount pairs a column name with a count, in header order.
type ColumnCount struct {
	Column string
	Count  int
}

// NewTable creates an empty table with the given header.
func NewTable(name string, header ...string) *Table {
	t := &Table{
		Name:   name,
		Header: append([]string(nil), header...),
	}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		t.index[h] = i
	}
}

// IsMissing reports whether a cell holds no value.
func IsMissing(cell string) bool {
	return strings.TrimSpace(cell) == ""
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Append adds a row. Short rows are padded with missing cells.
func (t *Table) Append(cells ...string) {
	row := make([]string, len(t.Header))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Col returns the position of a column.
func (t *Table) Col(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %s.%s", domain.ErrMissingColumn, t.Name, name)
	}
	return i, nil
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]string, error) {
	c, err := t.Col(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[c]
	}
	return out, nil
}

// Map rewrites every cell of a column in place.
func (t *Table) Map(name string, fn func(string) string) error {
	c, err := t.Col(name)
	if err != nil {
		return err
	}
	for _, row := range t.Rows {
		row[c] = fn(row[c])
	}
	return nil
}

// AddColumn appends a derived column. values must have one entry per row.
func (t *Table) AddColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s: got %d values for %d rows", name, len(values), len(t.Rows))
	}
	if t.HasColumn(name) {
		c := t.index[name]
		for i, row := range t.Rows {
			row[c] = values[i]
		}
		return nil
	}
	t.Header = append(t.Header, name)
	t.reindex()
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], values[i])
	}
	return nil
}

// MissingCounts returns the number of missing cells per column.
func (t *Table) MissingCounts() []ColumnCount {
	counts := make([]ColumnCount, len(t.Header))
	for c, h := range t.Header {
		counts[c].Column = h
	}
	for _, row := range t.Rows {
		for c, cell := range row {
			if IsMissing(cell) {
				counts[c].Count++
			}
		}
	}
	return counts
}

// TotalMissing returns the number of missing cells in the table.
func (t *Table) TotalMissing() int {
	total := 0
	for _, c := range t.MissingCounts() {
		total += c.Count
	}
	return total
}

// ForwardFill propagates the last valid value of each column downwards.
// Leading gaps take the first valid value of the column, so a column that
// holds at least one value has no missing cells afterwards. It returns the
// number of cells filled.
func (t *Table) ForwardFill() int {
	filled := 0
	for c := range t.Header {
		last := ""
		firstValid := -1
		for r, row := range t.Rows {
			if IsMissing(row[c]) {
				if last != "" {
					row[c] = last
					filled++
				}
				continue
			}
			last = row[c]
			if firstValid < 0 {
				firstValid = r
			}
		}
		if firstValid > 0 {
			head := t.Rows[firstValid][c]
			for r := 0; r < firstValid; r++ {
				t.Rows[r][c] = head
				filled++
			}
		}
	}
	return filled
}

// DropMissing removes every row with at least one missing cell and returns
// how many rows were dropped.
func (t *Table) DropMissing() int {
	kept := t.Rows[:0]
	dropped := 0
	for _, row := range t.Rows {
		complete := true
		for _, cell := range row {
			if IsMissing(cell) {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, row)
		} else {
			dropped++
		}
	}
	t.Rows = kept
	return dropped
}

// InnerJoin merges two tables on a shared key column. Rows follow the left
// table's order; the output holds the key, the remaining left columns and the
// remaining right columns. Colliding names get _x and _y suffixes.
func InnerJoin(left, right *Table, key string) (*Table, error) {
	lk, err := left.Col(key)
	if err != nil {
		return nil, err
	}
	rk, err := right.Col(key)
	if err != nil {
		return nil, err
	}

	header := []string{key}
	for i, h := range left.Header {
		if i == lk {
			continue
		}
		if right.HasColumn(h) {
			h += "_x"
		}
		header = append(header, h)
	}
	for i, h := range right.Header {
		if i == rk {
			continue
		}
		if left.HasColumn(h) {
			h += "_y"
		}
		header = append(header, h)
	}

	byKey := make(map[string][][]string, len(right.Rows))
	for _, row := range right.Rows {
		k := strings.TrimSpace(row[rk])
		byKey[k] = append(byKey[k], row)
	}

	out := NewTable(left.Name+"_"+right.Name, header...)
	for _, lrow := range left.Rows {
		k := strings.TrimSpace(lrow[lk])
		if k == "" {
			continue
		}
		for _, rrow := range byKey[k] {
			row := make([]string, 0, len(header))
			row = append(row, k)
			for i, cell := range lrow {
				if i != lk {
					row = append(row, cell)
				}
			}
			for i, cell := range rrow {
				if i != rk {
					row = append(row, cell)
				}
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}
