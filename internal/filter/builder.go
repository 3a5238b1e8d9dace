package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

// ErrNotPushable is returned when a filter cannot be expressed in the target
// SQL dialect and must be evaluated in memory instead.
var ErrNotPushable = errors.New("filter cannot be pushed down to SQL")

// Dialect selects the SQL flavour the builder emits.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

const (
	sqlTrue  = "1=1"
	sqlFalse = "1=0"
)

// Builder translates filter trees into SQL WHERE predicates with the same
// semantics as Engine.
type Builder struct {
	dialect Dialect
	columns map[string]bool
	kinds   map[string]table.Kind
}

// NewBuilder creates a builder. When columns is non-empty, leaves on other
// columns translate to an always-true predicate, mirroring the engine's
// pass-through of missing columns.
func NewBuilder(dialect Dialect, columns ...string) *Builder {
	b := &Builder{dialect: dialect}
	if len(columns) > 0 {
		b.columns = make(map[string]bool, len(columns))
		for _, c := range columns {
			b.columns[c] = true
		}
	}
	return b
}

// WithKinds records the declared storage kind of every column and switches the
// builder to superset mode: leaves whose SQL result could differ from Engine
// on those kinds become an always-true predicate instead of failing. Groups
// only combine with AND and OR, so the query then selects every row Engine
// would keep and possibly more. Callers must still apply the filter in memory.
func (b *Builder) WithKinds(kinds map[string]table.Kind) *Builder {
	b.kinds = kinds
	b.columns = make(map[string]bool, len(kinds))
	for name := range kinds {
		b.columns[name] = true
	}
	return b
}

// Build returns a squirrel predicate for root. A nil or empty root yields an
// always-true predicate.
func (b *Builder) Build(root models.Component) (sq.Sqlizer, error) {
	if root == nil || root.IsEmpty() {
		return sq.Expr(sqlTrue), nil
	}
	return b.build(root)
}

// BuildWhere renders root as a WHERE clause with dialect placeholders. It
// returns an empty clause for an empty root.
func (b *Builder) BuildWhere(root models.Component) (string, []any, error) {
	if root == nil || root.IsEmpty() {
		return "", nil, nil
	}
	pred, err := b.build(root)
	if err != nil {
		return "", nil, err
	}
	clause, args, err := pred.ToSql()
	if err != nil {
		return "", nil, err
	}
	if b.dialect == Postgres {
		clause, err = sq.Dollar.ReplacePlaceholders(clause)
		if err != nil {
			return "", nil, err
		}
	}
	return "WHERE " + clause, args, nil
}

func (b *Builder) build(c models.Component) (sq.Sqlizer, error) {
	switch node := c.(type) {
	case *models.FilterLeaf:
		return b.buildLeaf(node)
	case *models.FilterGroup:
		return b.buildGroup(node)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedComponent, c)
	}
}

// buildGroup nests every step of the fold so the SQL evaluates in the same
// left-to-right order as the engine.
func (b *Builder) buildGroup(g *models.FilterGroup) (sq.Sqlizer, error) {
	items := g.Items()
	if len(items) == 0 {
		return sq.Expr(sqlTrue), nil
	}
	acc, err := b.build(items[0].Component)
	if err != nil {
		return nil, err
	}
	for _, it := range items[1:] {
		next, err := b.build(it.Component)
		if err != nil {
			return nil, err
		}
		if it.PrecedingOperator == models.LogicalOr {
			acc = sq.Or{acc, next}
		} else {
			acc = sq.And{acc, next}
		}
	}
	return acc, nil
}

func (b *Builder) buildLeaf(leaf *models.FilterLeaf) (sq.Sqlizer, error) {
	if b.columns != nil && !b.columns[leaf.ColumnName] {
		return sq.Expr(sqlTrue), nil
	}
	if b.kinds == nil {
		return b.leafPredicate(leaf)
	}
	if !pushable(b.kinds[leaf.ColumnName], leaf) {
		return sq.Expr(sqlTrue), nil
	}
	pred, err := b.leafPredicate(leaf)
	if errors.Is(err, ErrNotPushable) {
		return sq.Expr(sqlTrue), nil
	}
	return pred, err
}

// pushable reports whether SQL evaluates leaf exactly like Engine does on a
// column stored as kind. Text columns are excluded because the analyzer may
// turn them into dates, REAL columns for text operators because SQL renders
// them differently from Format, and patterns because SQL regex syntax is not
// RE2.
func pushable(kind table.Kind, leaf *models.FilterLeaf) bool {
	switch leaf.Operator {
	case models.OpIsNull, models.OpIsNotNull:
		return kind == table.KindInt || kind == table.KindFloat || kind == table.KindBool
	case models.OpContains, models.OpNotContains, models.OpStartsWith, models.OpEndsWith:
		return kind == table.KindInt
	case models.OpMatches, models.OpNotMatches:
		return false
	}
	if kind != table.KindInt && kind != table.KindFloat && kind != table.KindBool {
		return false
	}
	list := leaf.Operator == models.OpInList || leaf.Operator == models.OpNotInList
	for _, v := range operands(leaf) {
		if table.IsNull(v) {
			if list {
				continue
			}
			return false
		}
		if _, ok := v.(bool); ok {
			continue
		}
		if _, ok := table.ToFloat(v); !ok {
			return false
		}
	}
	return true
}

func operands(leaf *models.FilterLeaf) []any {
	switch leaf.Operator {
	case models.OpInList, models.OpNotInList:
		return toSlice(leaf.Value)
	case models.OpBetween, models.OpNotBetween:
		return []any{leaf.Value, leaf.Value2}
	}
	return []any{leaf.Value}
}

// hasTimeOperand reports whether leaf compares against a time. Engine parses
// stored strings as dates for these, which SQL cannot do.
func hasTimeOperand(leaf *models.FilterLeaf) bool {
	for _, v := range operands(leaf) {
		if _, ok := v.(time.Time); ok {
			return true
		}
	}
	return false
}

func (b *Builder) leafPredicate(leaf *models.FilterLeaf) (sq.Sqlizer, error) {
	if hasTimeOperand(leaf) {
		return nil, fmt.Errorf("%w: date operand on %q", ErrNotPushable, leaf.ColumnName)
	}
	col := QuoteIdent(leaf.ColumnName)

	switch leaf.Operator {
	case models.OpIsNull:
		return sq.Expr(col + " IS NULL"), nil
	case models.OpIsNotNull:
		return sq.Expr(col + " IS NOT NULL"), nil
	case models.OpEquals:
		return sq.Expr(col+" = ?", leaf.Value), nil
	case models.OpNotEquals:
		return sq.Expr(nullOr(col, col+" <> ?"), leaf.Value), nil
	case models.OpLessThan:
		return sq.Expr(col+" < ?", leaf.Value), nil
	case models.OpLessThanOrEqual:
		return sq.Expr(col+" <= ?", leaf.Value), nil
	case models.OpGreaterThan:
		return sq.Expr(col+" > ?", leaf.Value), nil
	case models.OpGreaterThanOrEqual:
		return sq.Expr(col+" >= ?", leaf.Value), nil
	case models.OpBetween:
		return sq.Expr(col+" BETWEEN ? AND ?", leaf.Value, leaf.Value2), nil
	case models.OpNotBetween:
		return sq.Expr("("+col+" < ? OR "+col+" > ?)", leaf.Value, leaf.Value2), nil
	case models.OpContains:
		return b.like(col, "%"+escapeLike(table.Format(leaf.Value))+"%", false), nil
	case models.OpNotContains:
		return b.like(col, "%"+escapeLike(table.Format(leaf.Value))+"%", true), nil
	case models.OpStartsWith:
		return b.like(col, escapeLike(table.Format(leaf.Value))+"%", false), nil
	case models.OpEndsWith:
		return b.like(col, "%"+escapeLike(table.Format(leaf.Value)), false), nil
	case models.OpMatches, models.OpNotMatches:
		return b.regex(col, leaf)
	case models.OpInList:
		return inList(col, toSlice(leaf.Value), false), nil
	case models.OpNotInList:
		return inList(col, toSlice(leaf.Value), true), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, leaf.Operator)
	}
}

func (b *Builder) textExpr(col string) string {
	if b.dialect == Postgres {
		return col + "::text"
	}
	return "CAST(" + col + " AS TEXT)"
}

func (b *Builder) like(col, pattern string, negate bool) sq.Sqlizer {
	var expr string
	if b.dialect == Postgres {
		expr = b.textExpr(col) + " ILIKE ?"
	} else {
		expr = "LOWER(" + b.textExpr(col) + ") LIKE LOWER(?) ESCAPE '\\'"
	}
	if negate {
		return sq.Expr(nullOr(col, "NOT ("+expr+")"), pattern)
	}
	return sq.Expr(expr, pattern)
}

func (b *Builder) regex(col string, leaf *models.FilterLeaf) (sq.Sqlizer, error) {
	negate := leaf.Operator == models.OpNotMatches
	pattern := "^(?:" + table.Format(leaf.Value) + ")"
	if _, err := regexp.Compile(pattern); err != nil {
		if negate {
			return sq.Expr(sqlTrue), nil
		}
		return sq.Expr(sqlFalse), nil
	}
	if b.dialect != Postgres {
		return nil, fmt.Errorf("%w: %s on %q", ErrNotPushable, leaf.Operator, leaf.ColumnName)
	}
	expr := b.textExpr(col) + " ~* ?"
	if negate {
		return sq.Expr(nullOr(col, "NOT ("+expr+")"), pattern), nil
	}
	return sq.Expr(expr, pattern), nil
}

func inList(col string, values []any, negate bool) sq.Sqlizer {
	var args []any
	wantNull := false
	for _, v := range values {
		if table.IsNull(v) {
			wantNull = true
			continue
		}
		args = append(args, v)
	}

	member := sqlFalse
	if len(args) > 0 {
		member = col + " IN (" + sq.Placeholders(len(args)) + ")"
	}
	switch {
	case !negate && wantNull:
		return sq.Expr("("+member+" OR "+col+" IS NULL)", args...)
	case !negate:
		return sq.Expr(member, args...)
	case wantNull:
		return sq.Expr("("+col+" IS NOT NULL AND NOT ("+member+"))", args...)
	default:
		return sq.Expr(nullOr(col, "NOT ("+member+")"), args...)
	}
}

// nullOr keeps null rows for negated predicates, matching the engine.
func nullOr(col, expr string) string {
	return "(" + col + " IS NULL OR " + expr + ")"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
