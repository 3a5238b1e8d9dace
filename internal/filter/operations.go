package filter

import (
	"regexp"
	"strings"

	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

func mapRows(col *table.Column, pred func(v any) bool) []bool {
	mask := make([]bool, col.Len())
	for i := range mask {
		mask[i] = pred(col.Value(i))
	}
	return mask
}

func not(fn opFunc) opFunc {
	return func(col *table.Column, leaf *models.FilterLeaf) []bool {
		mask := fn(col, leaf)
		for i := range mask {
			mask[i] = !mask[i]
		}
		return mask
	}
}

func opEquals(col *table.Column, leaf *models.FilterLeaf) []bool {
	return mapRows(col, func(v any) bool { return table.Equal(v, leaf.Value) })
}

// ordering builds a comparison operator. Nulls and values that cannot be
// compared with the operand never match.
func ordering(accept func(cmp int) bool) opFunc {
	return func(col *table.Column, leaf *models.FilterLeaf) []bool {
		return mapRows(col, func(v any) bool {
			c, ok := table.Compare(v, leaf.Value)
			return ok && accept(c)
		})
	}
}

func inRange(v, low, high any) (inside, ok bool) {
	lo, ok1 := table.Compare(v, low)
	hi, ok2 := table.Compare(v, high)
	if !ok1 || !ok2 {
		return false, false
	}
	return lo >= 0 && hi <= 0, true
}

func opBetween(col *table.Column, leaf *models.FilterLeaf) []bool {
	return mapRows(col, func(v any) bool {
		inside, ok := inRange(v, leaf.Value, leaf.Value2)
		return ok && inside
	})
}

// opNotBetween selects values strictly below the lower or above the upper
// bound. Nulls are neither.
func opNotBetween(col *table.Column, leaf *models.FilterLeaf) []bool {
	return mapRows(col, func(v any) bool {
		inside, ok := inRange(v, leaf.Value, leaf.Value2)
		return ok && !inside
	})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}

// textOp compares the string form of each non-null value with the operand.
func textOp(match func(s, operand string) bool) opFunc {
	return func(col *table.Column, leaf *models.FilterLeaf) []bool {
		operand := table.Format(leaf.Value)
		return mapRows(col, func(v any) bool {
			if table.IsNull(v) {
				return false
			}
			return match(table.Format(v), operand)
		})
	}
}

// opMatches anchors the pattern at the start of the value and ignores case.
// An invalid pattern matches nothing.
func (e *Engine) opMatches(col *table.Column, leaf *models.FilterLeaf) []bool {
	pattern := table.Format(leaf.Value)
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")")
	if err != nil {
		e.log.Warnw("invalid pattern, matching no rows",
			"column", leaf.ColumnName, "pattern", pattern, "error", err)
		return make([]bool, col.Len())
	}
	return mapRows(col, func(v any) bool {
		if table.IsNull(v) {
			return false
		}
		return re.MatchString(table.Format(v))
	})
}

// opInList treats a scalar operand as a one-element list. A nil entry in the
// list selects null rows.
func opInList(col *table.Column, leaf *models.FilterLeaf) []bool {
	values := toSlice(leaf.Value)
	wantNull := false
	for _, want := range values {
		if table.IsNull(want) {
			wantNull = true
		}
	}
	return mapRows(col, func(v any) bool {
		if table.IsNull(v) {
			return wantNull
		}
		for _, want := range values {
			if table.Equal(v, want) {
				return true
			}
		}
		return false
	})
}

func opIsNull(col *table.Column, _ *models.FilterLeaf) []bool {
	return mapRows(col, table.IsNull)
}

func toSlice(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	}
	return []any{v}
}
