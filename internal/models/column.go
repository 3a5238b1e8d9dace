package models

import "math"

// ColumnType is the semantic type inferred for a column.
type ColumnType int

const (
	ColumnUnknown ColumnType = iota
	ColumnNumeric
	ColumnDate
	ColumnText
	ColumnBoolean
)

func (t ColumnType) String() string {
	switch t {
	case ColumnNumeric:
		return "NUMERIC"
	case ColumnDate:
		return "DATE"
	case ColumnText:
		return "TEXT"
	case ColumnBoolean:
		return "BOOLEAN"
	default:
		return "UNKNOWN"
	}
}

// ColumnInfo holds the analysis of one column.
type ColumnInfo struct {
	Name string
	Type ColumnType
	// UniqueValues is a sorted sample of distinct non-null values, capped by
	// the analyzer.
	UniqueValues []any
	// MinValue and MaxValue are nil unless Type is NUMERIC or DATE.
	MinValue   any
	MaxValue   any
	NullCount  int
	TotalCount int
}

// UniqueCount is the size of the unique value sample.
func (c ColumnInfo) UniqueCount() int {
	return len(c.UniqueValues)
}

// IsCategorical reports whether a TEXT column has few enough distinct values
// to be offered as a fixed choice set.
func (c ColumnInfo) IsCategorical() bool {
	if c.Type != ColumnText {
		return false
	}
	return float64(c.UniqueCount()) <= math.Max(20, float64(c.TotalCount)*0.5)
}

// HasRange reports whether both bounds are known.
func (c ColumnInfo) HasRange() bool {
	return c.MinValue != nil && c.MaxValue != nil
}

// InputKind describes which kind of value input fits a column and operator.
type InputKind int

const (
	InputNone InputKind = iota
	InputNumeric
	InputDate
	InputBoolean
	InputList
	InputCategorical
	InputText
)

// InputKind returns the value input to offer for op on this column.
func (c ColumnInfo) InputKind(op FilterOperator) InputKind {
	if op.IsNullCheck() {
		return InputNone
	}
	switch c.Type {
	case ColumnNumeric:
		return InputNumeric
	case ColumnDate:
		return InputDate
	case ColumnBoolean:
		return InputBoolean
	}
	if op.IsList() {
		return InputList
	}
	if (op == OpEquals || op == OpNotEquals) && c.IsCategorical() {
		return InputCategorical
	}
	return InputText
}
