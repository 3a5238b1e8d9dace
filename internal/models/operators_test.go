package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilterOperator(t *testing.T) {
	for _, op := range AllOperators() {
		got, err := ParseFilterOperator(string(op))
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	assert.Len(t, AllOperators(), 18)

	_, err := ParseFilterOperator("LIKE")
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestOperatorsFor(t *testing.T) {
	assert.Len(t, OperatorsFor(ColumnNumeric), 10)
	assert.Equal(t, OperatorsFor(ColumnNumeric), OperatorsFor(ColumnDate))
	assert.Equal(t, []FilterOperator{OpEquals, OpNotEquals, OpIsNull, OpIsNotNull}, OperatorsFor(ColumnBoolean))
	assert.Len(t, OperatorsFor(ColumnText), 12)
	assert.Equal(t, OperatorsFor(ColumnText), OperatorsFor(ColumnUnknown))

	assert.True(t, Supports(ColumnText, OpMatches))
	assert.False(t, Supports(ColumnNumeric, OpContains))
	assert.False(t, Supports(ColumnBoolean, OpBetween))
}

func TestParseLogicalOperator(t *testing.T) {
	op, err := ParseLogicalOperator("or")
	require.NoError(t, err)
	assert.Equal(t, LogicalOr, op)

	_, err = ParseLogicalOperator("XOR")
	assert.ErrorIs(t, err, ErrUnknownLogical)

	assert.Equal(t, "AND", LogicalNone.Symbol())
}

func TestColumnInfoIsCategorical(t *testing.T) {
	values := make([]any, 25)
	for i := range values {
		values[i] = i
	}
	info := ColumnInfo{Type: ColumnText, UniqueValues: values, TotalCount: 40}
	assert.False(t, info.IsCategorical(), "25 > max(20, 20)")

	info.TotalCount = 60
	assert.True(t, info.IsCategorical(), "25 <= max(20, 30)")

	info.Type = ColumnNumeric
	assert.False(t, info.IsCategorical())
}

func TestColumnInfoInputKind(t *testing.T) {
	text := ColumnInfo{Type: ColumnText, UniqueValues: []any{"a", "b"}, TotalCount: 10}
	assert.Equal(t, InputCategorical, text.InputKind(OpEquals))
	assert.Equal(t, InputList, text.InputKind(OpInList))
	assert.Equal(t, InputText, text.InputKind(OpContains))
	assert.Equal(t, InputNone, text.InputKind(OpIsNull))

	assert.Equal(t, InputNumeric, ColumnInfo{Type: ColumnNumeric}.InputKind(OpBetween))
	assert.Equal(t, InputDate, ColumnInfo{Type: ColumnDate}.InputKind(OpLessThan))
	assert.Equal(t, InputBoolean, ColumnInfo{Type: ColumnBoolean}.InputKind(OpEquals))
}

func TestConnectionConfigConnString(t *testing.T) {
	c := ConnectionConfig{Host: "localhost", User: "app", Database: "hr"}
	assert.Equal(t, "host=localhost port=5432 user=app database=hr sslmode=prefer", c.ConnString())

	c.DSN = "postgres://app:secret@db/hr"
	assert.Equal(t, c.DSN, c.ConnString())
	assert.NotContains(t, c.Redacted(), "secret")
}
