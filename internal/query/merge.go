package query

import (
	"fmt"
	"regexp"
)

// predicate is an operator object under construction, e.g. {"$gt": 25}.
// It is kept distinct from map values supplied by clients so that a literal
// object compared with == is never mistaken for a predicate to merge into.
type predicate map[string]any

// merge applies one normalized condition to the accumulated filter.
// Callers own acc; it is mutated in place.
func merge(acc map[string]any, field string, op Operator, value any) {
	switch op {
	case OpEqual:
		cur, ok := acc[field]
		if !ok {
			acc[field] = value
			return
		}
		if p, isPred := cur.(predicate); isPred {
			p[KeyEq] = value
		}
		// A scalar already holds the field: first write wins.

	case OpNotEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		predicateFor(acc, field)[comparisonKeys[op]] = value

	case OpIn, OpArrayContainsAny:
		predicateFor(acc, field)[KeyIn] = asArray(value)

	case OpNotIn:
		predicateFor(acc, field)[KeyNin] = asArray(value)

	case OpArrayContains:
		acc[field] = value

	case OpExists:
		predicateFor(acc, field)[KeyExists] = truthy(value)

	case OpRegex:
		acc[field] = predicate{KeyRegex: patternText(value), KeyOptions: "i"}

	case OpLike:
		acc[field] = predicate{KeyRegex: likePattern(patternText(value)), KeyOptions: "i"}

	default:
		acc[field] = value
	}
}

// predicateFor returns the predicate object for field, creating it when the
// field is unset and wrapping an existing scalar as {"$eq": scalar}.
func predicateFor(acc map[string]any, field string) predicate {
	cur, ok := acc[field]
	if ok {
		if p, isPred := cur.(predicate); isPred {
			return p
		}
		p := predicate{KeyEq: cur}
		acc[field] = p
		return p
	}
	p := predicate{}
	acc[field] = p
	return p
}

// likePattern builds a "contains" regular expression from literal text.
func likePattern(s string) string {
	return ".*" + regexp.QuoteMeta(s) + ".*"
}

func patternText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// finalize converts working predicates into plain maps.
func finalize(acc map[string]any) map[string]any {
	out := make(map[string]any, len(acc))
	for k, v := range acc {
		if p, ok := v.(predicate); ok {
			v = map[string]any(p)
		}
		out[k] = v
	}
	return out
}
