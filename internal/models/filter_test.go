package models

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterGroupAddNormalizesFirstOperator(t *testing.T) {
	g := NewGroup()
	g.Add(NewLeaf("Age", OpGreaterThan, 25), LogicalOr)
	g.Add(NewLeaf("City", OpEquals, "Ankara"), LogicalNone)
	g.Or(NewLeaf("City", OpEquals, "Izmir"))

	op, ok := g.OperatorAt(0)
	require.True(t, ok)
	assert.Equal(t, LogicalNone, op)

	op, _ = g.OperatorAt(1)
	assert.Equal(t, LogicalAnd, op)
	op, _ = g.OperatorAt(2)
	assert.Equal(t, LogicalOr, op)
}

func TestFilterGroupIsEmpty(t *testing.T) {
	var nilGroup *FilterGroup
	assert.True(t, nilGroup.IsEmpty())

	g := NewGroup()
	assert.True(t, g.IsEmpty())

	g.Add(NewGroup(), LogicalAnd)
	g.Add(NewGroup().Add(NewGroup(), LogicalAnd), LogicalOr)
	assert.True(t, g.IsEmpty(), "group of empty groups is empty")

	g.Add(NewLeaf("Age", OpIsNull, nil), LogicalAnd)
	assert.False(t, g.IsEmpty())
}

func TestFilterGroupRemoveFirstClearsOperator(t *testing.T) {
	first := NewLeaf("A", OpEquals, 1)
	g := NewGroup().Add(first, LogicalNone)
	g.Or(NewLeaf("B", OpEquals, 2))
	g.And(NewLeaf("C", OpEquals, 3))

	require.True(t, g.RemoveByID(first.ID()))
	require.Equal(t, 2, g.Len())
	op, _ := g.OperatorAt(0)
	assert.Equal(t, LogicalNone, op)
	op, _ = g.OperatorAt(1)
	assert.Equal(t, LogicalAnd, op)
}

func TestFilterGroupRemoveNested(t *testing.T) {
	deep := NewLeaf("X", OpContains, "a")
	inner := NewGroup().Add(NewLeaf("Y", OpEquals, "b"), LogicalNone).Or(deep)
	root := NewGroup().Add(NewLeaf("Z", OpIsNull, nil), LogicalNone).And(inner)

	assert.False(t, root.RemoveByID("missing"))
	require.True(t, root.RemoveByID(deep.ID()))
	assert.Equal(t, 1, inner.Len())
	assert.Nil(t, root.FindByID(deep.ID()))
}

func TestFilterGroupFindByID(t *testing.T) {
	leaf := NewLeaf("X", OpEquals, 1)
	inner := NewGroup().Add(leaf, LogicalNone)
	root := NewGroup().Add(inner, LogicalNone)

	assert.Same(t, root, root.FindByID(root.ID()))
	assert.Same(t, inner, root.FindByID(inner.ID()))
	assert.Same(t, leaf, root.FindByID(leaf.ID()))
	assert.Nil(t, root.FindByID("nope"))
}

func TestFilterGroupSetOperatorAt(t *testing.T) {
	g := NewGroup().Add(NewLeaf("A", OpEquals, 1), LogicalNone).And(NewLeaf("B", OpEquals, 2))

	assert.False(t, g.SetOperatorAt(0, LogicalOr))
	assert.False(t, g.SetOperatorAt(5, LogicalOr))
	assert.True(t, g.SetOperatorAt(1, LogicalOr))
	op, _ := g.OperatorAt(1)
	assert.Equal(t, LogicalOr, op)
}

func TestFilterGroupNilReceiver(t *testing.T) {
	var g *FilterGroup

	assert.True(t, g.IsEmpty())
	assert.Zero(t, g.Len())
	assert.Empty(t, g.ID())
	assert.Nil(t, g.FindByID("x"))
	assert.False(t, g.RemoveAt(0))
	assert.False(t, g.RemoveByID("x"))
	assert.False(t, g.Remove(NewLeaf("A", OpIsNull, nil)))
	assert.False(t, g.SetOperatorAt(1, LogicalOr))
	_, ok := g.OperatorAt(0)
	assert.False(t, ok)
	assert.NotPanics(t, g.Clear)

	leaf := NewLeaf("A", OpEquals, 1)
	g = g.Add(leaf, LogicalOr)
	require.NotNil(t, g)
	assert.Equal(t, 1, g.Len())
	op, _ := g.OperatorAt(0)
	assert.Equal(t, LogicalNone, op)
	assert.Same(t, leaf, g.FindByID(leaf.ID()))
}

func TestAllFiltersDepthFirst(t *testing.T) {
	a := NewLeaf("A", OpEquals, 1)
	b := NewLeaf("B", OpEquals, 2)
	c := NewLeaf("C", OpEquals, 3)
	root := NewGroup().
		Add(a, LogicalNone).
		Or(NewGroup().Add(b, LogicalNone).And(NewGroup())).
		And(c)

	leaves := root.AllFilters()
	require.Len(t, leaves, 3)
	assert.Equal(t, []string{a.ID(), b.ID(), c.ID()}, []string{leaves[0].ID(), leaves[1].ID(), leaves[2].ID()})
}

func TestDisplayString(t *testing.T) {
	tests := []struct {
		name string
		c    Component
		want string
	}{
		{"comparison", NewLeaf("Age", OpGreaterThanOrEqual, 30), "Age ≥ 30"},
		{"null check", NewLeaf("Age", OpIsNotNull, nil), "Age IS NOT NULL"},
		{"range", NewRange("Age", OpBetween, 10, 20), "Age 10 - 20 BETWEEN"},
		{"list", NewLeaf("City", OpInList, []any{"Ankara", "Izmir"}), "City IN [Ankara, Izmir]"},
		{"empty group", NewGroup(), "(empty group)"},
		{
			"nested",
			NewGroup().
				Add(NewLeaf("A", OpEquals, 1), LogicalNone).
				Or(NewGroup().Add(NewLeaf("B", OpEquals, 2), LogicalNone).And(NewLeaf("C", OpEquals, 3))),
			"A = 1 OR (B = 2 AND C = 3)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.DisplayString(0))
		})
	}

	assert.Equal(t, "    Age IS NULL", NewLeaf("Age", OpIsNull, nil).DisplayString(2))
}

func roundTrip(t *testing.T, g *FilterGroup) *FilterGroup {
	t.Helper()
	data, err := json.Marshal(g.ToMap())
	require.NoError(t, err)

	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&m))

	out, err := GroupFromMap(m)
	require.NoError(t, err)
	return out
}

func TestGroupRoundTrip(t *testing.T) {
	when := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	inner := NewGroup().
		Add(NewLeaf("City", OpInList, []any{"Ankara", "Izmir"}), LogicalNone).
		Or(NewRange("Joined", OpBetween, when, when.AddDate(0, 1, 0)))
	root := NewGroup().
		Add(NewLeaf("Age", OpGreaterThan, int64(30)), LogicalNone).
		Or(inner).
		And(NewLeaf("Score", OpLessThan, 7.5))

	got := roundTrip(t, root)

	assert.Equal(t, root.ID(), got.ID())
	assert.Equal(t, root.ToMap(), got.ToMap())

	leaves := got.AllFilters()
	require.Len(t, leaves, 4)
	assert.Equal(t, int64(30), leaves[0].Value)
	assert.Equal(t, []any{"Ankara", "Izmir"}, leaves[1].Value)
	assert.Equal(t, when, leaves[2].Value)
	assert.Equal(t, 7.5, leaves[3].Value)

	op, _ := got.OperatorAt(1)
	assert.Equal(t, LogicalOr, op)
}

func TestRoundTripNormalizesValueTypes(t *testing.T) {
	istanbul := time.FixedZone("TRT", 3*60*60)
	when := time.Date(2024, 3, 15, 10, 30, 0, 0, istanbul)
	root := NewGroup().
		Add(NewLeaf("Age", OpEquals, 30), LogicalNone).
		And(NewLeaf("City", OpInList, []string{"Ankara", "Izmir"})).
		And(NewLeaf("Joined", OpGreaterThan, when))

	leaves := roundTrip(t, root).AllFilters()
	require.Len(t, leaves, 3)

	assert.Equal(t, int64(30), leaves[0].Value)
	assert.Equal(t, []any{"Ankara", "Izmir"}, leaves[1].Value)

	got, ok := leaves[2].Value.(time.Time)
	require.True(t, ok)
	assert.True(t, when.Equal(got))
	_, offset := got.Zone()
	assert.Equal(t, 3*60*60, offset)
}

func TestEncodeValueTagsTimes(t *testing.T) {
	v := EncodeValue([]any{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02"})
	list, ok := v.([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"__datetime__": true, "iso": "2024-01-02T00:00:00"}, list[0])
	assert.Equal(t, "2024-01-02", list[1])
}

func TestGroupFromLegacyOperators(t *testing.T) {
	m := map[string]any{
		"type": "group",
		"id":   "root",
		"children": []any{
			map[string]any{"type": "filter", "id": "a", "column_name": "A", "operator": "EQUALS", "value": 1},
			map[string]any{"type": "filter", "id": "b", "column_name": "B", "operator": "EQUALS", "value": 2},
			map[string]any{"type": "filter", "id": "c", "column_name": "C", "operator": "EQUALS", "value": 3},
		},
		"operators": []any{"OR"},
	}

	g, err := GroupFromMap(m)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	ops := []LogicalOperator{}
	for _, it := range g.Items() {
		ops = append(ops, it.PrecedingOperator)
	}
	assert.Equal(t, []LogicalOperator{LogicalNone, LogicalOr, LogicalAnd}, ops)
	assert.Equal(t, int64(1), g.AllFilters()[0].Value)
}

func TestGroupFromLegacyLogicalOperator(t *testing.T) {
	m := map[string]any{
		"id": "root",
		"children": []any{
			map[string]any{"column_name": "A", "operator": "IS_NULL"},
			map[string]any{"column_name": "B", "operator": "IS_NULL"},
		},
		"logical_operator": "OR",
	}

	g, err := GroupFromMap(m)
	require.NoError(t, err)
	op, _ := g.OperatorAt(1)
	assert.Equal(t, LogicalOr, op)
	assert.NotEmpty(t, g.AllFilters()[0].ID())
}

func TestComponentFromMapErrors(t *testing.T) {
	_, err := ComponentFromMap(map[string]any{"type": "shape"})
	assert.ErrorIs(t, err, ErrInvalidComponent)

	_, err = ComponentFromMap(map[string]any{"type": "filter", "column_name": "A", "operator": "LIKE"})
	assert.ErrorIs(t, err, ErrUnknownOperator)

	_, err = ComponentFromMap(map[string]any{"type": "filter", "operator": "EQUALS"})
	assert.ErrorIs(t, err, ErrInvalidComponent)
}
