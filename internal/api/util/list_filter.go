// Package util parses the filter, sort and paging parameters shared by the
// admin list endpoints.
package util

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Operator is a comparison accepted in ?query= conditions.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpNin       Operator = "nin"
	OpIsNull    Operator = "isnull"
	OpIsNotNull Operator = "isnotnull"
)

var operators = map[string]Operator{
	"eq":        OpEq,
	"ne":        OpNe,
	"gt":        OpGt,
	"gte":       OpGte,
	"lt":        OpLt,
	"lte":       OpLte,
	"in":        OpIn,
	"nin":       OpNin,
	"isnull":    OpIsNull,
	"isnotnull": OpIsNotNull,
}

const (
	DefaultPerPage = 25
	MaxPerPage     = 500
)

// Condition is one query term. Values has one entry for comparisons, the
// whole list for in/nin and none for null checks.
type Condition struct {
	Field  string
	Op     Operator
	Values []string
}

// SortKey is one ?order= term.
type SortKey struct {
	Field string
	Desc  bool
}

// ListFilter is a validated list request.
type ListFilter struct {
	Conditions []Condition
	Sort       []SortKey
	Page       int
	PerPage    int
}

// Offset is the number of rows that precede the requested page.
func (f ListFilter) Offset() int {
	if f.Page <= 1 || f.PerPage <= 0 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}

func (f ListFilter) TotalPages(total int) int {
	if f.PerPage <= 0 {
		return 0
	}
	return (total + f.PerPage - 1) / f.PerPage
}

// ListSchema names the columns an endpoint lets callers filter and sort on.
// Only these names ever reach SQL.
type ListSchema struct {
	Filterable []string
	Sortable   []string
}

// Parse validates the raw query, order, page and per_page parameters.
//
// Conditions are comma-separated and take one of three forms:
//   - field|value (equality)
//   - field|isnull, field|isnotnull
//   - field|operator|value, where in/nin lists are separated by semicolons
//
// Order terms are field|asc or field|desc. A missing or malformed page or
// per_page falls back to the default; per_page is capped at MaxPerPage.
func (s ListSchema) Parse(query, order, page, perPage string) (ListFilter, error) {
	f := ListFilter{
		Page:    positiveOr(page, 1),
		PerPage: min(positiveOr(perPage, DefaultPerPage), MaxPerPage),
	}

	for _, term := range splitTerms(query) {
		c, err := parseCondition(term)
		if err != nil {
			return ListFilter{}, err
		}
		if !slices.Contains(s.Filterable, c.Field) {
			return ListFilter{}, fmt.Errorf("invalid query field: %s (valid fields: %s)", c.Field, strings.Join(s.Filterable, ", "))
		}
		f.Conditions = append(f.Conditions, c)
	}

	for _, term := range splitTerms(order) {
		k, err := parseSortKey(term)
		if err != nil {
			return ListFilter{}, err
		}
		if !slices.Contains(s.Sortable, k.Field) {
			return ListFilter{}, fmt.Errorf("invalid order field: %s (valid fields: %s)", k.Field, strings.Join(s.Sortable, ", "))
		}
		f.Sort = append(f.Sort, k)
	}

	return f, nil
}

func parseCondition(term string) (Condition, error) {
	parts := strings.Split(term, "|")

	switch len(parts) {
	case 2:
		if op := Operator(strings.ToLower(parts[1])); op == OpIsNull || op == OpIsNotNull {
			return Condition{Field: parts[0], Op: op}, nil
		}
		return Condition{Field: parts[0], Op: OpEq, Values: []string{parts[1]}}, nil

	case 3:
		op, ok := operators[strings.ToLower(parts[1])]
		if !ok {
			return Condition{}, fmt.Errorf("invalid operator: %s", parts[1])
		}
		switch op {
		case OpIsNull, OpIsNotNull:
			return Condition{Field: parts[0], Op: op}, nil
		case OpIn, OpNin:
			return Condition{Field: parts[0], Op: op, Values: splitList(parts[2])}, nil
		default:
			return Condition{Field: parts[0], Op: op, Values: []string{parts[2]}}, nil
		}
	}

	return Condition{}, fmt.Errorf("invalid query format: %s (expected field|value or field|operator|value)", term)
}

func parseSortKey(term string) (SortKey, error) {
	field, dir, ok := strings.Cut(term, "|")
	if !ok || strings.Contains(dir, "|") {
		return SortKey{}, fmt.Errorf("invalid order format: %s (expected field|direction)", term)
	}

	switch strings.ToLower(dir) {
	case "asc":
		return SortKey{Field: field}, nil
	case "desc":
		return SortKey{Field: field, Desc: true}, nil
	}
	return SortKey{}, fmt.Errorf("invalid order direction: %s (expected asc or desc)", dir)
}

func splitTerms(s string) []string {
	var terms []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func splitList(s string) []string {
	var values []string
	for _, v := range strings.Split(s, ";") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func positiveOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
