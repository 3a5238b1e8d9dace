package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownOperator is returned when an operator name is not recognised.
	ErrUnknownOperator = errors.New("unknown filter operator")
	// ErrUnknownLogical is returned when a logical operator name is not recognised.
	ErrUnknownLogical = errors.New("unknown logical operator")
)

// FilterOperator represents a leaf predicate operator. The value is the
// persisted name.
type FilterOperator string

const (
	OpEquals             FilterOperator = "EQUALS"
	OpNotEquals          FilterOperator = "NOT_EQUALS"
	OpLessThan           FilterOperator = "LESS_THAN"
	OpLessThanOrEqual    FilterOperator = "LESS_THAN_OR_EQUAL"
	OpGreaterThan        FilterOperator = "GREATER_THAN"
	OpGreaterThanOrEqual FilterOperator = "GREATER_THAN_OR_EQUAL"
	OpBetween            FilterOperator = "BETWEEN"
	OpNotBetween         FilterOperator = "NOT_BETWEEN"
	OpContains           FilterOperator = "CONTAINS"
	OpNotContains        FilterOperator = "NOT_CONTAINS"
	OpStartsWith         FilterOperator = "STARTS_WITH"
	OpEndsWith           FilterOperator = "ENDS_WITH"
	OpMatches            FilterOperator = "MATCHES"
	OpNotMatches         FilterOperator = "NOT_MATCHES"
	OpInList             FilterOperator = "IN_LIST"
	OpNotInList          FilterOperator = "NOT_IN_LIST"
	OpIsNull             FilterOperator = "IS_NULL"
	OpIsNotNull          FilterOperator = "IS_NOT_NULL"
)

var operatorSymbols = map[FilterOperator]string{
	OpEquals:             "=",
	OpNotEquals:          "≠",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "≤",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: "≥",
	OpBetween:            "BETWEEN",
	OpNotBetween:         "NOT BETWEEN",
	OpContains:           "CONTAINS",
	OpNotContains:        "NOT CONTAINS",
	OpStartsWith:         "STARTS WITH",
	OpEndsWith:           "ENDS WITH",
	OpMatches:            "MATCHES",
	OpNotMatches:         "NOT MATCHES",
	OpInList:             "IN",
	OpNotInList:          "NOT IN",
	OpIsNull:             "IS NULL",
	OpIsNotNull:          "IS NOT NULL",
}

// AllOperators returns every operator in declaration order.
func AllOperators() []FilterOperator {
	return []FilterOperator{
		OpEquals, OpNotEquals,
		OpLessThan, OpLessThanOrEqual,
		OpGreaterThan, OpGreaterThanOrEqual,
		OpBetween, OpNotBetween,
		OpContains, OpNotContains,
		OpStartsWith, OpEndsWith,
		OpMatches, OpNotMatches,
		OpInList, OpNotInList,
		OpIsNull, OpIsNotNull,
	}
}

// ParseFilterOperator resolves a persisted operator name.
func ParseFilterOperator(name string) (FilterOperator, error) {
	op := FilterOperator(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := operatorSymbols[op]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
	return op, nil
}

// Valid reports whether the operator is one of the known operators.
func (o FilterOperator) Valid() bool {
	_, ok := operatorSymbols[o]
	return ok
}

// Symbol returns the display symbol of the operator.
func (o FilterOperator) Symbol() string {
	if s, ok := operatorSymbols[o]; ok {
		return s
	}
	return string(o)
}

// IsRange reports whether the operator takes two bounds.
func (o FilterOperator) IsRange() bool {
	return o == OpBetween || o == OpNotBetween
}

// IsNullCheck reports whether the operator takes no value.
func (o FilterOperator) IsNullCheck() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// IsList reports whether the operator takes a list of values.
func (o FilterOperator) IsList() bool {
	return o == OpInList || o == OpNotInList
}

// OperatorsFor returns the operators offered for a column type.
func OperatorsFor(t ColumnType) []FilterOperator {
	switch t {
	case ColumnNumeric, ColumnDate:
		return []FilterOperator{
			OpEquals, OpNotEquals,
			OpLessThan, OpLessThanOrEqual,
			OpGreaterThan, OpGreaterThanOrEqual,
			OpBetween, OpNotBetween,
			OpIsNull, OpIsNotNull,
		}
	case ColumnBoolean:
		return []FilterOperator{OpEquals, OpNotEquals, OpIsNull, OpIsNotNull}
	default:
		return []FilterOperator{
			OpEquals, OpNotEquals,
			OpContains, OpNotContains,
			OpStartsWith, OpEndsWith,
			OpMatches, OpNotMatches,
			OpInList, OpNotInList,
			OpIsNull, OpIsNotNull,
		}
	}
}

// Supports reports whether op is offered for columns of type t.
func Supports(t ColumnType, op FilterOperator) bool {
	for _, o := range OperatorsFor(t) {
		if o == op {
			return true
		}
	}
	return false
}

// LogicalOperator joins a group item to the items before it. The empty value
// marks the first item of a group, which has no predecessor.
type LogicalOperator string

const (
	LogicalNone LogicalOperator = ""
	LogicalAnd  LogicalOperator = "AND"
	LogicalOr   LogicalOperator = "OR"
)

// ParseLogicalOperator resolves a persisted logical operator name.
func ParseLogicalOperator(name string) (LogicalOperator, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "AND":
		return LogicalAnd, nil
	case "OR":
		return LogicalOr, nil
	}
	return LogicalNone, fmt.Errorf("%w: %q", ErrUnknownLogical, name)
}

// Symbol returns the display symbol. An absent operator displays as AND.
func (l LogicalOperator) Symbol() string {
	if l == LogicalOr {
		return "OR"
	}
	return "AND"
}
