package engine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

// Match reports whether doc satisfies filter. Filter keys are dotted field
// paths mapped to a value (equality) or an operator object, plus the
// logical operators $and, $or and $nor.
func Match(doc map[string]any, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		var ok bool
		var err error
		switch key {
		case "$and":
			ok, err = matchLogical(doc, key, cond, func(n, total int) bool { return n == total })
		case "$or":
			ok, err = matchLogical(doc, key, cond, func(n, _ int) bool { return n > 0 })
		case "$nor":
			ok, err = matchLogical(doc, key, cond, func(n, _ int) bool { return n == 0 })
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, key)
			}
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc map[string]any, op string, cond any, accept func(n, total int) bool) (bool, error) {
	clauses, ok := cond.([]any)
	if !ok || len(clauses) == 0 {
		return false, fmt.Errorf("%w: %s needs a non-empty array", ErrInvalidStage, op)
	}
	n := 0
	for _, c := range clauses {
		sub, ok := asMap(c)
		if !ok {
			return false, fmt.Errorf("%w: %s entries must be objects", ErrInvalidStage, op)
		}
		matched, err := Match(doc, sub)
		if err != nil {
			return false, err
		}
		if matched {
			n++
		}
	}
	return accept(n, len(clauses)), nil
}

// operatorObject reports whether cond is an operator object such as
// {"$gt": 1}. Objects mixing operators and plain keys are literals.
func operatorObject(cond any) (map[string]any, bool) {
	m, ok := asMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(doc map[string]any, path string, cond any) (bool, error) {
	vals, found := resolve(doc, path)
	ops, isOps := operatorObject(cond)
	if !isOps {
		return matchEq(vals, found, cond), nil
	}
	return matchOps(vals, found, ops)
}

func matchOps(vals []any, found bool, ops map[string]any) (bool, error) {
	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = matchEq(vals, found, arg)
		case "$ne":
			ok = !matchEq(vals, found, arg)
		case "$gt":
			ok = matchCmp(vals, arg, func(c int) bool { return c > 0 })
		case "$gte":
			ok = matchCmp(vals, arg, func(c int) bool { return c >= 0 })
		case "$lt":
			ok = matchCmp(vals, arg, func(c int) bool { return c < 0 })
		case "$lte":
			ok = matchCmp(vals, arg, func(c int) bool { return c <= 0 })
		case "$in", "$nin":
			list, isList := arg.([]any)
			if !isList {
				return false, fmt.Errorf("%w: %s needs an array", ErrInvalidStage, op)
			}
			ok = false
			for _, want := range list {
				if matchEq(vals, found, want) {
					ok = true
					break
				}
			}
			if op == "$nin" {
				ok = !ok
			}
		case "$exists":
			ok = truthy(arg) == found
		case "$regex":
			re, err := compileRegex(arg, ops["$options"])
			if err != nil {
				return false, err
			}
			ok = anyCandidate(vals, func(v any) bool {
				s, isStr := v.(string)
				return isStr && re.MatchString(s)
			})
		case "$options":
			if _, hasRegex := ops["$regex"]; !hasRegex {
				return false, fmt.Errorf("%w: $options without $regex", ErrInvalidStage)
			}
			ok = true
		case "$not":
			sub, isOps := operatorObject(arg)
			if !isOps {
				return false, fmt.Errorf("%w: $not needs an operator object", ErrInvalidStage)
			}
			matched, err := matchOps(vals, found, sub)
			if err != nil {
				return false, err
			}
			ok = !matched
		default:
			return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// anyCandidate applies fn to each value and, for arrays, to each element.
func anyCandidate(vals []any, fn func(any) bool) bool {
	for _, v := range vals {
		if fn(v) {
			return true
		}
		if arr, ok := v.([]any); ok {
			for _, e := range arr {
				if fn(e) {
					return true
				}
			}
		}
	}
	return false
}

// matchEq is equality with array-element semantics. A null operand also
// matches a missing field.
func matchEq(vals []any, found bool, want any) bool {
	if !found {
		return want == nil
	}
	return anyCandidate(vals, func(v any) bool { return Equal(v, want) })
}

// matchCmp compares only values of the same type as the operand.
func matchCmp(vals []any, want any, accept func(int) bool) bool {
	wc := classOf(want)
	return anyCandidate(vals, func(v any) bool {
		return classOf(v) == wc && accept(Compare(v, want))
	})
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// regexCache holds compiled patterns, up to maxCachedRegexes of them.
var (
	regexCache       sync.Map
	regexCacheSize   atomic.Int64
	maxCachedRegexes int64 = 1024
)

func compileRegex(pattern, options any) (*regexp.Regexp, error) {
	p, ok := pattern.(string)
	if !ok {
		return nil, fmt.Errorf("%w: $regex needs a string", ErrInvalidStage)
	}
	var flags strings.Builder
	if o, ok := options.(string); ok {
		for _, r := range o {
			switch r {
			case 'i', 'm', 's':
				flags.WriteRune(r)
			default:
				return nil, fmt.Errorf("%w: unsupported regex option %q", ErrInvalidStage, r)
			}
		}
	}
	if flags.Len() > 0 {
		p = "(?" + flags.String() + ")" + p
	}
	if re, ok := regexCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}
	if regexCacheSize.Load() < maxCachedRegexes {
		if _, loaded := regexCache.LoadOrStore(p, re); !loaded {
			regexCacheSize.Add(1)
		}
	}
	return re, nil
}
