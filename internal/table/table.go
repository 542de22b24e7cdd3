// Package table provides the in-memory tabular structure the pipeline works on:
// named, typed, nullable columns of equal length.
package table

import (
	"errors"
	"fmt"
)

var (
	// ErrColumnNotFound is returned when a named column does not exist.
	ErrColumnNotFound = errors.New("column not found")

	// ErrDuplicateColumn is returned when adding a column whose name is taken.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrRowCount is returned when a column length differs from the table's.
	ErrRowCount = errors.New("row count mismatch")
)

// Column is a named, typed sequence of cells.
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// NewColumn builds a column. Values are expected to carry the same Kind.
func NewColumn(name string, kind Kind, values []Value) *Column {
	return &Column{Name: name, Kind: kind, Values: values}
}

// NullCount returns the number of null cells.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v.Null {
			n++
		}
	}
	return n
}

func (c *Column) clone() *Column {
	values := make([]Value, len(c.Values))
	copy(values, c.Values)
	return &Column{Name: c.Name, Kind: c.Kind, Values: values}
}

// Table is an ordered set of columns sharing one row count.
type Table struct {
	Name  string
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates a table from columns. All columns must have the same length.
func New(name string, cols ...*Column) (*Table, error) {
	t := &Table{Name: name, index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The slice is a copy; the columns are not.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return t.cols[i], nil
}

// AddColumn appends a column.
func (t *Table) AddColumn(c *Column) error {
	if _, ok := t.index[c.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
	}
	if len(t.cols) > 0 && len(c.Values) != t.rows {
		return fmt.Errorf("%w: column %q has %d rows, table has %d", ErrRowCount, c.Name, len(c.Values), t.rows)
	}
	if len(t.cols) == 0 {
		t.rows = len(c.Values)
	}
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// SetColumn replaces the column with the same name in place, or appends it.
func (t *Table) SetColumn(c *Column) error {
	i, ok := t.index[c.Name]
	if !ok {
		return t.AddColumn(c)
	}
	if len(c.Values) != t.rows {
		return fmt.Errorf("%w: column %q has %d rows, table has %d", ErrRowCount, c.Name, len(c.Values), t.rows)
	}
	t.cols[i] = c
	return nil
}

// DropColumn removes the named column.
func (t *Table) DropColumn(name string) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	t.cols = append(t.cols[:i], t.cols[i+1:]...)
	t.reindex()
	return nil
}

// RenameColumn renames a column, keeping its position.
func (t *Table) RenameColumn(from, to string) error {
	if from == to {
		if !t.Has(from) {
			return fmt.Errorf("%w: %q", ErrColumnNotFound, from)
		}
		return nil
	}
	i, ok := t.index[from]
	if !ok {
		return fmt.Errorf("%w: %q", ErrColumnNotFound, from)
	}
	if _, taken := t.index[to]; taken {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, to)
	}
	t.cols[i].Name = to
	t.reindex()
	return nil
}

// Select returns a new table holding copies of the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{Name: t.Name, index: make(map[string]int, len(names))}
	for _, name := range names {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(c.clone()); err != nil {
			return nil, err
		}
	}
	if len(names) == 0 {
		out.rows = t.rows
	}
	return out, nil
}

// FilterRows returns a new table with the rows for which keep returns true.
func (t *Table) FilterRows(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}

	out := &Table{Name: t.Name, index: make(map[string]int, len(t.cols)), rows: len(rows)}
	for _, c := range t.cols {
		values := make([]Value, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, &Column{Name: c.Name, Kind: c.Kind, Values: values})
	}
	return out
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.Values[i]
	}
	return row
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Name: t.Name, index: make(map[string]int, len(t.cols)), rows: t.rows}
	for _, c := range t.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	return out
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c.Name] = i
	}
}

// Equal reports whether two tables have the same columns, in the same order,
// with the same kinds and cell values. Table names are not compared.
func Equal(a, b *Table) bool {
	if a.NumCols() != b.NumCols() || a.NumRows() != b.NumRows() {
		return false
	}
	for i, ca := range a.cols {
		cb := b.cols[i]
		if ca.Name != cb.Name || ca.Kind != cb.Kind {
			return false
		}
		for r := range ca.Values {
			if !ca.Values[r].Equal(cb.Values[r]) {
				return false
			}
		}
	}
	return true
}
