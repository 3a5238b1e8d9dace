package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rebeliceyang/gridfilter/internal/table"
)

// Component is a node of a filter tree: either a FilterLeaf or a FilterGroup.
type Component interface {
	// ID returns the node identifier, stable for the lifetime of the node.
	ID() string
	// IsEmpty reports whether the node carries no predicate.
	IsEmpty() bool
	// DisplayString renders the node for humans.
	DisplayString(indent int) string
	// ToMap returns the serializable form of the node.
	ToMap() map[string]any

	component()
}

func newID() string {
	return uuid.New().String()
}

// FilterLeaf is a single predicate on one column.
type FilterLeaf struct {
	id         string
	ColumnName string
	Operator   FilterOperator
	Value      any
	// Value2 is the upper bound of range operators.
	Value2 any
}

// NewLeaf creates a leaf predicate with a fresh id.
func NewLeaf(column string, op FilterOperator, value any) *FilterLeaf {
	return &FilterLeaf{id: newID(), ColumnName: column, Operator: op, Value: value}
}

// NewRange creates a BETWEEN or NOT_BETWEEN leaf.
func NewRange(column string, op FilterOperator, low, high any) *FilterLeaf {
	l := NewLeaf(column, op, low)
	l.Value2 = high
	return l
}

func (l *FilterLeaf) component() {}

func (l *FilterLeaf) ID() string { return l.id }

// IsEmpty is always false; a leaf always carries a predicate.
func (l *FilterLeaf) IsEmpty() bool { return false }

func (l *FilterLeaf) DisplayString(indent int) string {
	pad := strings.Repeat("  ", indent)
	switch {
	case l.Operator.IsNullCheck():
		return fmt.Sprintf("%s%s %s", pad, l.ColumnName, l.Operator.Symbol())
	case l.Operator.IsRange():
		return fmt.Sprintf("%s%s %s - %s %s", pad, l.ColumnName,
			displayValue(l.Value), displayValue(l.Value2), l.Operator.Symbol())
	default:
		return fmt.Sprintf("%s%s %s %s", pad, l.ColumnName, l.Operator.Symbol(), displayValue(l.Value))
	}
}

func (l *FilterLeaf) String() string {
	return l.DisplayString(0)
}

// FilterItem is a child of a group together with the logical operator that
// joins it to the accumulated result of the items before it.
type FilterItem struct {
	Component         Component
	PrecedingOperator LogicalOperator
}

// FilterGroup is an ordered list of items evaluated left to right.
type FilterGroup struct {
	id    string
	items []FilterItem
}

// NewGroup creates an empty group with a fresh id.
func NewGroup() *FilterGroup {
	return &FilterGroup{id: newID()}
}

func (g *FilterGroup) component() {}

func (g *FilterGroup) ID() string {
	if g == nil {
		return ""
	}
	return g.id
}

// IsEmpty reports whether the group has no items or only empty children.
// A nil group is empty.
func (g *FilterGroup) IsEmpty() bool {
	if g == nil {
		return true
	}
	for _, it := range g.items {
		if !it.Component.IsEmpty() {
			return false
		}
	}
	return true
}

// Len returns the number of direct items.
func (g *FilterGroup) Len() int {
	if g == nil {
		return 0
	}
	return len(g.items)
}

// Add appends c and returns the group. The operator is ignored for the
// first item and defaults to AND for later items. Like append, adding to a
// nil group allocates a new one.
func (g *FilterGroup) Add(c Component, op LogicalOperator) *FilterGroup {
	if c == nil {
		return g
	}
	if g == nil {
		g = NewGroup()
	}
	if len(g.items) == 0 {
		op = LogicalNone
	} else if op == LogicalNone {
		op = LogicalAnd
	}
	g.items = append(g.items, FilterItem{Component: c, PrecedingOperator: op})
	return g
}

// And appends c joined with AND.
func (g *FilterGroup) And(c Component) *FilterGroup { return g.Add(c, LogicalAnd) }

// Or appends c joined with OR.
func (g *FilterGroup) Or(c Component) *FilterGroup { return g.Add(c, LogicalOr) }

// RemoveAt removes the item at index i. Returns false when i is out of range.
func (g *FilterGroup) RemoveAt(i int) bool {
	if i < 0 || i >= g.Len() {
		return false
	}
	g.items = append(g.items[:i], g.items[i+1:]...)
	if i == 0 && len(g.items) > 0 {
		g.items[0].PrecedingOperator = LogicalNone
	}
	return true
}

// RemoveByID removes the first direct child with the id, otherwise searches
// nested groups depth-first. Returns false when nothing was removed.
func (g *FilterGroup) RemoveByID(id string) bool {
	if g == nil {
		return false
	}
	for i, it := range g.items {
		if it.Component.ID() == id {
			return g.RemoveAt(i)
		}
	}
	for _, it := range g.items {
		if sub, ok := it.Component.(*FilterGroup); ok && sub.RemoveByID(id) {
			return true
		}
	}
	return false
}

// Remove removes c from the tree by identity of id.
func (g *FilterGroup) Remove(c Component) bool {
	if c == nil {
		return false
	}
	return g.RemoveByID(c.ID())
}

// FindByID returns the node with the id: the group itself, a direct child, or
// a node inside a nested group.
func (g *FilterGroup) FindByID(id string) Component {
	if g == nil {
		return nil
	}
	if g.id == id {
		return g
	}
	for _, it := range g.items {
		if it.Component.ID() == id {
			return it.Component
		}
	}
	for _, it := range g.items {
		if sub, ok := it.Component.(*FilterGroup); ok {
			if found := sub.FindByID(id); found != nil {
				return found
			}
		}
	}
	return nil
}

// OperatorAt returns the preceding operator of item i.
func (g *FilterGroup) OperatorAt(i int) (LogicalOperator, bool) {
	if i < 0 || i >= g.Len() {
		return LogicalNone, false
	}
	return g.items[i].PrecedingOperator, true
}

// SetOperatorAt changes the preceding operator of item i. The first item
// has no predecessor and cannot be changed.
func (g *FilterGroup) SetOperatorAt(i int, op LogicalOperator) bool {
	if i <= 0 || i >= g.Len() {
		return false
	}
	if op != LogicalAnd && op != LogicalOr {
		return false
	}
	g.items[i].PrecedingOperator = op
	return true
}

// Items returns a copy of the group items.
func (g *FilterGroup) Items() []FilterItem {
	if g == nil {
		return nil
	}
	out := make([]FilterItem, len(g.items))
	copy(out, g.items)
	return out
}

// Children returns the direct child components.
func (g *FilterGroup) Children() []Component {
	if g == nil {
		return nil
	}
	out := make([]Component, len(g.items))
	for i, it := range g.items {
		out[i] = it.Component
	}
	return out
}

// Clear removes all items.
func (g *FilterGroup) Clear() {
	if g != nil {
		g.items = nil
	}
}

// AllFilters returns every leaf in the tree in depth-first order.
func (g *FilterGroup) AllFilters() []*FilterLeaf {
	var out []*FilterLeaf
	if g == nil {
		return out
	}
	for _, it := range g.items {
		switch c := it.Component.(type) {
		case *FilterLeaf:
			out = append(out, c)
		case *FilterGroup:
			out = append(out, c.AllFilters()...)
		}
	}
	return out
}

func (g *FilterGroup) DisplayString(indent int) string {
	pad := strings.Repeat("  ", indent)
	if g == nil || len(g.items) == 0 {
		return pad + "(empty group)"
	}
	var b strings.Builder
	b.WriteString(pad)
	for i, it := range g.items {
		if i > 0 {
			b.WriteString(" ")
			b.WriteString(it.PrecedingOperator.Symbol())
			b.WriteString(" ")
		}
		if sub, ok := it.Component.(*FilterGroup); ok {
			b.WriteString("(")
			b.WriteString(sub.DisplayString(0))
			b.WriteString(")")
			continue
		}
		b.WriteString(it.Component.DisplayString(0))
	}
	return b.String()
}

func (g *FilterGroup) String() string {
	return g.DisplayString(0)
}

func displayValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = displayValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		return "[" + strings.Join(x, ", ") + "]"
	}
	return table.Format(v)
}
