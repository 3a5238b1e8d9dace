// Package table provides the in-memory columnar table that the analyzer and
// the filter engine operate on.
package table

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrLengthMismatch is returned when columns or masks disagree on row count.
	ErrLengthMismatch = errors.New("table: length mismatch")
	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("table: duplicate column")
)

// Kind is the declared storage type of a column.
type Kind int

const (
	KindAny Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	default:
		return "any"
	}
}

// IsNumeric reports whether the kind stores numbers.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// Column is a named sequence of values. A nil value (or a float NaN) is null.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// NewColumn creates a column. Pass KindAny to infer the kind from the values.
func NewColumn(name string, kind Kind, values []any) *Column {
	if kind == KindAny {
		kind = InferKind(values)
	}
	return &Column{Name: name, Kind: kind, Values: values}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	return len(c.Values)
}

// Value returns the value at row i.
func (c *Column) Value(i int) any {
	return c.Values[i]
}

// IsNull reports whether row i is null.
func (c *Column) IsNull(i int) bool {
	return IsNull(c.Values[i])
}

// NullCount returns the number of null rows.
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if IsNull(v) {
			n++
		}
	}
	return n
}

// NonNull returns the non-null values in row order.
func (c *Column) NonNull() []any {
	out := make([]any, 0, len(c.Values))
	for _, v := range c.Values {
		if !IsNull(v) {
			out = append(out, v)
		}
	}
	return out
}

// IsNull reports whether v represents a missing value.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// Table is an ordered set of equally long, uniquely named columns.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New builds a table from columns.
func New(columns ...*Column) (*Table, error) {
	t := &Table{
		columns: make([]*Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, ok := t.index[c.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrLengthMismatch, c.Name, c.Len(), t.rows)
		}
		t.index[c.Name] = i
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// MustNew is like New but panics on error. Use only for constants and tests.
func MustNew(columns ...*Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return t.rows
}

// NumColumns returns the column count.
func (t *Table) NumColumns() int {
	return len(t.columns)
}

// Columns returns the columns in order.
func (t *Table) Columns() []*Column {
	return t.columns
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Row returns row i keyed by column name.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Filter returns a new table holding the rows where mask is true.
func (t *Table) Filter(mask []bool) (*Table, error) {
	if len(mask) != t.rows {
		return nil, fmt.Errorf("%w: mask has %d entries, table has %d rows", ErrLengthMismatch, len(mask), t.rows)
	}
	keep := 0
	for _, m := range mask {
		if m {
			keep++
		}
	}
	cols := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		values := make([]any, 0, keep)
		for r, m := range mask {
			if m {
				values = append(values, c.Values[r])
			}
		}
		cols[i] = &Column{Name: c.Name, Kind: c.Kind, Values: values}
	}
	return New(cols...)
}

// ReplaceColumn returns a copy of the table with the named column swapped for col.
func (t *Table) ReplaceColumn(col *Column) (*Table, error) {
	i, ok := t.index[col.Name]
	if !ok {
		return nil, fmt.Errorf("table: no column %q", col.Name)
	}
	if col.Len() != t.rows {
		return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrLengthMismatch, col.Name, col.Len(), t.rows)
	}
	cols := make([]*Column, len(t.columns))
	copy(cols, t.columns)
	cols[i] = col
	return New(cols...)
}

// InferKind picks the narrowest kind that holds every non-null value.
func InferKind(values []any) Kind {
	kind := KindAny
	seen := false
	for _, v := range values {
		if IsNull(v) {
			continue
		}
		k := kindOf(v)
		if !seen {
			kind, seen = k, true
			continue
		}
		if k == kind {
			continue
		}
		if kind.IsNumeric() && k.IsNumeric() {
			kind = KindFloat
			continue
		}
		return KindAny
	}
	return kind
}

func kindOf(v any) Kind {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	case time.Time:
		return KindTime
	case string:
		return KindString
	default:
		return KindAny
	}
}
