// Package conditions evaluates workflow targeting filters against records.
//
// Chaining is strictly left-associative with no operator precedence: each
// condition's result is combined with the running result using the logical
// operator attached to that condition, so "A OR B AND C" evaluates as
// "(A OR B) AND C".
package conditions

import (
	"sort"
	"strconv"
	"strings"

	"github.com/leadmill/leadmill/pkg/models"
)

// Matches reports whether the target record satisfies the condition chain.
// An empty chain matches every record. Evaluation never errors; comparisons
// that cannot be performed resolve to false.
func Matches(target map[string]any, conds []models.Condition) bool {
	if len(conds) == 0 {
		return true
	}

	result := evaluate(target, conds[0])

	for _, cond := range conds[1:] {
		if cond.Logical == models.LogicalOr {
			result = result || evaluate(target, cond)
		} else {
			result = result && evaluate(target, cond)
		}
	}

	return result
}

// FromFilter converts an equality filter map (as carried by event-based
// triggers) into a condition chain. Keys are sorted for deterministic order;
// all entries are AND-joined equals comparisons.
func FromFilter(filter map[string]any) []models.Condition {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	conds := make([]models.Condition, 0, len(keys))
	for i, k := range keys {
		cond := models.Condition{Field: k, Operator: models.OperatorEquals, Value: filter[k]}
		if i > 0 {
			cond.Logical = models.LogicalAnd
		}

		conds = append(conds, cond)
	}

	return conds
}

func evaluate(target map[string]any, cond models.Condition) bool {
	value, present := target[cond.Field]

	switch cond.Operator {
	case models.OperatorExists:
		return present && value != nil
	case models.OperatorEquals:
		return present && equal(value, cond.Value)
	case models.OperatorNotEquals:
		return !present || !equal(value, cond.Value)
	case models.OperatorContains:
		return present && contains(value, cond.Value)
	case models.OperatorGreaterThan:
		return present && numericCompare(value, cond.Value, func(a, b float64) bool { return a > b })
	case models.OperatorLessThan:
		return present && numericCompare(value, cond.Value, func(a, b float64) bool { return a < b })
	case models.OperatorIn:
		return present && member(cond.Value, value)
	case models.OperatorNotIn:
		return !present || !member(cond.Value, value)
	default:
		return false
	}
}

// equal compares two values strictly, except that numbers compare by value
// across int/float representations (JSON decoding yields float64).
func equal(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}

		return false
	}

	return a == b
}

// contains is a substring test for strings and a membership test for
// collections.
func contains(haystack, needle any) bool {
	switch v := haystack.(type) {
	case string:
		s, ok := needle.(string)

		return ok && strings.Contains(v, s)
	default:
		items, ok := toList(haystack)
		if !ok {
			return false
		}

		for _, item := range items {
			if equal(item, needle) {
				return true
			}
		}

		return false
	}
}

// member tests whether needle is an element of the condition value coerced to
// a list. A scalar condition value is treated as a one-element list.
func member(listValue, needle any) bool {
	items, ok := toList(listValue)
	if !ok {
		items = []any{listValue}
	}

	for _, item := range items {
		if equal(item, needle) {
			return true
		}
	}

	return false
}

func numericCompare(a, b any, cmp func(float64, float64) bool) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	return aok && bok && cmp(af, bf)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func toList(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}

		return out, true
	default:
		return nil, false
	}
}
