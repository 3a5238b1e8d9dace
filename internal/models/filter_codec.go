package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidComponent is returned when a serialized node cannot be decoded.
var ErrInvalidComponent = errors.New("invalid filter component")

const (
	componentTypeFilter = "filter"
	componentTypeGroup  = "group"

	datetimeTag = "__datetime__"
	naiveLayout = "2006-01-02T15:04:05.999999999"
)

func (l *FilterLeaf) ToMap() map[string]any {
	return map[string]any{
		"type":        componentTypeFilter,
		"id":          l.id,
		"column_name": l.ColumnName,
		"operator":    string(l.Operator),
		"value":       EncodeValue(l.Value),
		"value2":      EncodeValue(l.Value2),
	}
}

func (g *FilterGroup) ToMap() map[string]any {
	items := make([]any, 0, len(g.items))
	for _, it := range g.items {
		var op any
		if it.PrecedingOperator != LogicalNone {
			op = string(it.PrecedingOperator)
		}
		items = append(items, map[string]any{
			"component":          it.Component.ToMap(),
			"preceding_operator": op,
		})
	}
	return map[string]any{
		"type":  componentTypeGroup,
		"id":    g.id,
		"items": items,
	}
}

// ComponentFromMap decodes a leaf or group by its "type" field. Nodes without
// a type are treated as groups when they carry items or children.
func ComponentFromMap(m map[string]any) (Component, error) {
	switch m["type"] {
	case componentTypeGroup:
		return GroupFromMap(m)
	case componentTypeFilter:
		return LeafFromMap(m)
	case nil:
		if _, ok := m["items"]; ok {
			return GroupFromMap(m)
		}
		if _, ok := m["children"]; ok {
			return GroupFromMap(m)
		}
		return LeafFromMap(m)
	default:
		return nil, fmt.Errorf("%w: type %v", ErrInvalidComponent, m["type"])
	}
}

// LeafFromMap decodes a leaf. A missing id is replaced with a fresh one.
func LeafFromMap(m map[string]any) (*FilterLeaf, error) {
	column, ok := m["column_name"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: filter without column_name", ErrInvalidComponent)
	}
	opName, _ := m["operator"].(string)
	op, err := ParseFilterOperator(opName)
	if err != nil {
		return nil, fmt.Errorf("filter on %q: %w", column, err)
	}
	value, err := DecodeValue(m["value"])
	if err != nil {
		return nil, err
	}
	value2, err := DecodeValue(m["value2"])
	if err != nil {
		return nil, err
	}
	return &FilterLeaf{
		id:         idOrNew(m),
		ColumnName: column,
		Operator:   op,
		Value:      value,
		Value2:     value2,
	}, nil
}

// GroupFromMap decodes a group from the item list schema or from the older
// schema that keeps children and operators in parallel lists.
func GroupFromMap(m map[string]any) (*FilterGroup, error) {
	g := &FilterGroup{id: idOrNew(m)}

	if raw, ok := m["items"]; ok {
		items, ok := raw.([]any)
		if !ok && raw != nil {
			return nil, fmt.Errorf("%w: items is %T", ErrInvalidComponent, raw)
		}
		for i, rawItem := range items {
			im, ok := rawItem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is %T", ErrInvalidComponent, i, rawItem)
			}
			cm, ok := im["component"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d has no component", ErrInvalidComponent, i)
			}
			c, err := ComponentFromMap(cm)
			if err != nil {
				return nil, err
			}
			op, err := logicalFromAny(im["preceding_operator"])
			if err != nil {
				return nil, err
			}
			g.Add(c, op)
		}
		return g, nil
	}

	rawChildren, _ := m["children"].([]any)
	children := make([]Component, 0, len(rawChildren))
	for i, rc := range rawChildren {
		cm, ok := rc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: child %d is %T", ErrInvalidComponent, i, rc)
		}
		c, err := ComponentFromMap(cm)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	var operators []LogicalOperator
	rawOps, _ := m["operators"].([]any)
	if len(rawOps) == 0 {
		if legacy, ok := m["logical_operator"]; ok {
			op, err := logicalFromAny(legacy)
			if err != nil {
				return nil, err
			}
			for i := 1; i < len(children); i++ {
				operators = append(operators, op)
			}
		}
	} else {
		for _, ro := range rawOps {
			op, err := logicalFromAny(ro)
			if err != nil {
				return nil, err
			}
			operators = append(operators, op)
		}
	}

	for i, c := range children {
		op := LogicalAnd
		if i > 0 && i-1 < len(operators) && operators[i-1] != LogicalNone {
			op = operators[i-1]
		}
		g.Add(c, op)
	}
	return g, nil
}

func idOrNew(m map[string]any) string {
	if id, ok := m["id"].(string); ok && id != "" {
		return id
	}
	return newID()
}

func logicalFromAny(v any) (LogicalOperator, error) {
	switch x := v.(type) {
	case nil:
		return LogicalNone, nil
	case string:
		if x == "" {
			return LogicalNone, nil
		}
		return ParseLogicalOperator(x)
	case LogicalOperator:
		return x, nil
	}
	return LogicalNone, fmt.Errorf("%w: %v", ErrUnknownLogical, v)
}

// EncodeValue converts a filter value to its serializable form. Times become
// tagged objects; slices are encoded element-wise.
//
// The encoding keeps values, not Go types. After DecodeValue every integer
// is an int64, every slice is a []any, and a time in a named zone carries a
// fixed offset for the same instant. Filters compare values across these
// forms, so a decoded leaf matches the same rows as the original.
func EncodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		iso := x.Format(time.RFC3339Nano)
		if x.Location() == time.UTC {
			iso = x.Format(naiveLayout)
		}
		return map[string]any{datetimeTag: true, "iso": iso}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = EncodeValue(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	}
	return v
}

// DecodeValue reverses EncodeValue. JSON numbers decode to int64 when they
// are integral, float64 otherwise.
func DecodeValue(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if tagged, _ := x[datetimeTag].(bool); tagged {
			iso, _ := x["iso"].(string)
			t, err := parseISO(iso)
			if err != nil {
				return nil, fmt.Errorf("decode datetime %q: %w", iso, err)
			}
			return t, nil
		}
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			d, err := DecodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", x.String(), err)
		}
		return f, nil
	case int:
		return int64(x), nil
	}
	return v, nil
}

func parseISO(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(naiveLayout, s)
}
