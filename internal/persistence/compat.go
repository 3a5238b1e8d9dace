package persistence

import (
	"fmt"

	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

// IssueKind classifies a compatibility problem.
type IssueKind string

const (
	IssueMissingColumn       IssueKind = "missing_column"
	IssueUnsupportedOperator IssueKind = "unsupported_operator"
	IssueOutOfRange          IssueKind = "out_of_range"
	IssueUnknownValues       IssueKind = "unknown_values"
)

// Issue describes why one leaf does not fit the current columns.
type Issue struct {
	FilterID string
	Column   string
	Kind     IssueKind
	Detail   string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Column, i.Detail, i.Kind)
}

// CheckCompatibility validates every leaf of g against infos. It never fails;
// an empty result means the filters fit.
func CheckCompatibility(g *models.FilterGroup, infos []models.ColumnInfo) []Issue {
	byName := make(map[string]models.ColumnInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}

	var issues []Issue
	for _, leaf := range g.AllFilters() {
		info, ok := byName[leaf.ColumnName]
		if !ok {
			issues = append(issues, issue(leaf, IssueMissingColumn, "column not found"))
			continue
		}
		if !models.Supports(info.Type, leaf.Operator) {
			issues = append(issues, issue(leaf, IssueUnsupportedOperator,
				fmt.Sprintf("%s is not available for %s columns", leaf.Operator.Symbol(), info.Type)))
			continue
		}
		if leaf.Operator.IsRange() && info.HasRange() {
			if detail, ok := checkRange(leaf, info); !ok {
				issues = append(issues, issue(leaf, IssueOutOfRange, detail))
			}
		}
		if leaf.Operator.IsList() && len(info.UniqueValues) > 0 {
			if missing := unknownValues(leaf.Value, info.UniqueValues); len(missing) > 0 {
				issues = append(issues, issue(leaf, IssueUnknownValues,
					fmt.Sprintf("values not present: %v", missing)))
			}
		}
	}
	return issues
}

// IsCompatible reports whether CheckCompatibility finds no issues.
func IsCompatible(g *models.FilterGroup, infos []models.ColumnInfo) bool {
	return len(CheckCompatibility(g, infos)) == 0
}

func issue(leaf *models.FilterLeaf, kind IssueKind, detail string) Issue {
	return Issue{FilterID: leaf.ID(), Column: leaf.ColumnName, Kind: kind, Detail: detail}
}

func checkRange(leaf *models.FilterLeaf, info models.ColumnInfo) (string, bool) {
	lo, ok1 := table.Compare(leaf.Value, info.MinValue)
	hi, ok2 := table.Compare(leaf.Value2, info.MaxValue)
	if !ok1 || !ok2 {
		return "range bounds cannot be compared with column values", false
	}
	if lo < 0 || hi > 0 {
		return fmt.Sprintf("range %s - %s outside %s - %s",
			table.Format(leaf.Value), table.Format(leaf.Value2),
			table.Format(info.MinValue), table.Format(info.MaxValue)), false
	}
	return "", true
}

func unknownValues(v any, sample []any) []any {
	var wanted []any
	switch x := v.(type) {
	case []any:
		wanted = x
	case []string:
		for _, s := range x {
			wanted = append(wanted, s)
		}
	default:
		wanted = []any{v}
	}

	var missing []any
	for _, w := range wanted {
		if table.IsNull(w) {
			continue
		}
		found := false
		for _, s := range sample {
			if table.Equal(w, s) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	return missing
}
