package tableio

import (
	"strconv"
	"strings"

	"github.com/rebeliceyang/gridfilter/internal/table"
)

// defaultNullTokens are read as missing values.
var defaultNullTokens = []string{"", "NA", "N/A", "n/a", "NaN", "nan", "null", "NULL", "None", "#N/A", "<NA>"}

func nullSet(opts Options) map[string]bool {
	tokens := defaultNullTokens
	if v, ok := opts[OptNullValues]; ok {
		tokens = strings.Split(v, ",")
	}
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// inferColumn converts raw text cells into the narrowest kind that accepts
// every non-null cell: int, float, bool, then string.
func inferColumn(name string, raw []string, nulls map[string]bool) *table.Column {
	values := make([]any, len(raw))
	isInt, isFloat, isBool := true, true, true
	nonNull := 0
	for _, s := range raw {
		if nulls[s] {
			continue
		}
		nonNull++
		if isInt {
			if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBoolCell(s); !ok {
				isBool = false
			}
		}
	}

	kind := table.KindString
	switch {
	case nonNull == 0:
		kind = table.KindFloat
	case isInt:
		kind = table.KindInt
	case isFloat:
		kind = table.KindFloat
	case isBool:
		kind = table.KindBool
	}

	for i, s := range raw {
		if nulls[s] {
			continue
		}
		switch kind {
		case table.KindInt:
			values[i], _ = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		case table.KindFloat:
			values[i], _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
		case table.KindBool:
			values[i], _ = parseBoolCell(s)
		default:
			values[i] = s
		}
	}
	return table.NewColumn(name, kind, values)
}

func parseBoolCell(s string) (bool, bool) {
	switch s {
	case "True", "true", "TRUE":
		return true, true
	case "False", "false", "FALSE":
		return false, true
	}
	return false, false
}
