package filter

import (
	"errors"
	"fmt"

	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

var (
	// ErrUnsupportedOperator is returned when a leaf uses an operator the
	// engine has no evaluation function for.
	ErrUnsupportedOperator = errors.New("unsupported filter operator")
	// ErrUnsupportedComponent is returned for tree nodes that are neither a
	// leaf nor a group.
	ErrUnsupportedComponent = errors.New("unsupported filter component")
)

// opFunc evaluates one operator against a column, returning a row mask.
type opFunc func(col *table.Column, leaf *models.FilterLeaf) []bool

// Engine compiles filter trees into row masks. An Engine holds no per-call
// state and may be shared across goroutines.
type Engine struct {
	ops map[models.FilterOperator]opFunc
	log *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for recovered evaluation problems.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates an engine with the full operator set.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	e.ops = map[models.FilterOperator]opFunc{
		models.OpEquals:             opEquals,
		models.OpNotEquals:          not(opEquals),
		models.OpLessThan:           ordering(func(c int) bool { return c < 0 }),
		models.OpLessThanOrEqual:    ordering(func(c int) bool { return c <= 0 }),
		models.OpGreaterThan:        ordering(func(c int) bool { return c > 0 }),
		models.OpGreaterThanOrEqual: ordering(func(c int) bool { return c >= 0 }),
		models.OpBetween:            opBetween,
		models.OpNotBetween:         opNotBetween,
		models.OpContains:           textOp(containsFold),
		models.OpNotContains:        not(textOp(containsFold)),
		models.OpStartsWith:         textOp(hasPrefixFold),
		models.OpEndsWith:           textOp(hasSuffixFold),
		models.OpMatches:            e.opMatches,
		models.OpNotMatches:         not(e.opMatches),
		models.OpInList:             opInList,
		models.OpNotInList:          not(opInList),
		models.OpIsNull:             opIsNull,
		models.OpIsNotNull:          not(opIsNull),
	}
	return e
}

// Mask evaluates c against t. A nil component selects every row.
func (e *Engine) Mask(t *table.Table, c models.Component) ([]bool, error) {
	switch node := c.(type) {
	case nil:
		return allTrue(t.NumRows()), nil
	case *models.FilterLeaf:
		return e.leafMask(t, node)
	case *models.FilterGroup:
		return e.groupMask(t, node)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedComponent, c)
	}
}

func (e *Engine) leafMask(t *table.Table, leaf *models.FilterLeaf) ([]bool, error) {
	if leaf == nil {
		return allTrue(t.NumRows()), nil
	}
	fn, ok := e.ops[leaf.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, leaf.Operator)
	}
	col, ok := t.Column(leaf.ColumnName)
	if !ok {
		e.log.Debugw("filter column not in table, passing rows through",
			"column", leaf.ColumnName, "filter_id", leaf.ID())
		return allTrue(t.NumRows()), nil
	}
	return fn(col, leaf), nil
}

// groupMask folds item masks strictly left to right. Each item combines with
// the accumulated result, so A OR B AND C is ((A OR B) AND C).
func (e *Engine) groupMask(t *table.Table, g *models.FilterGroup) ([]bool, error) {
	items := g.Items()
	if len(items) == 0 {
		return allTrue(t.NumRows()), nil
	}

	mask, err := e.Mask(t, items[0].Component)
	if err != nil {
		return nil, err
	}
	for _, it := range items[1:] {
		next, err := e.Mask(t, it.Component)
		if err != nil {
			return nil, err
		}
		if it.PrecedingOperator == models.LogicalOr {
			for i := range mask {
				mask[i] = mask[i] || next[i]
			}
			continue
		}
		for i := range mask {
			mask[i] = mask[i] && next[i]
		}
	}
	return mask, nil
}

// Apply returns the rows of t selected by root. A nil or empty root returns
// t itself.
func (e *Engine) Apply(t *table.Table, root models.Component) (*table.Table, error) {
	if root == nil || root.IsEmpty() {
		return t, nil
	}
	mask, err := e.Mask(t, root)
	if err != nil {
		return nil, err
	}
	return t.Filter(mask)
}

// Count returns how many rows of t root selects.
func (e *Engine) Count(t *table.Table, root models.Component) (int, error) {
	if root == nil || root.IsEmpty() {
		return t.NumRows(), nil
	}
	mask, err := e.Mask(t, root)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, keep := range mask {
		if keep {
			n++
		}
	}
	return n, nil
}

// Summary renders root for display.
func Summary(root models.Component) string {
	if root == nil || root.IsEmpty() {
		return "no filters"
	}
	return root.DisplayString(0)
}

func allTrue(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}
