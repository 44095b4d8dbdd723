package engine

import (
	"encoding/json"
	"fmt"
	"maps"
)

type windowOutput struct {
	field  string
	acc    accumulatorSpec
	lo, hi bound
}

// bound is a window edge relative to the current document.
type bound struct {
	unbounded bool
	offset    int
}

func parseBound(v any) (bound, error) {
	if s, ok := v.(string); ok {
		switch s {
		case "unbounded":
			return bound{unbounded: true}, nil
		case "current":
			return bound{}, nil
		}
	}
	if f, ok := toFloat(v); ok && f == float64(int(f)) {
		return bound{offset: int(f)}, nil
	}
	return bound{}, fmt.Errorf("%w: invalid window bound %v", ErrInvalidStage, v)
}

func parseWindowOutput(field string, v any) (windowOutput, error) {
	acc, err := parseAccumulator(field, v, "window")
	if err != nil {
		return windowOutput{}, err
	}
	out := windowOutput{field: field, acc: acc, lo: bound{unbounded: true}, hi: bound{unbounded: true}}

	m, _ := asMap(v)
	w, ok := m["window"]
	if !ok {
		return out, nil
	}
	wm, ok := asMap(w)
	if !ok {
		return windowOutput{}, fmt.Errorf("%w: window must be an object", ErrInvalidStage)
	}
	for k := range wm {
		if k != "documents" {
			return windowOutput{}, fmt.Errorf("%w: window %s", ErrUnsupportedOperator, k)
		}
	}
	docs, ok := wm["documents"].([]any)
	if !ok || len(docs) != 2 {
		return windowOutput{}, fmt.Errorf("%w: window documents must be [lower, upper]", ErrInvalidStage)
	}
	if out.lo, err = parseBound(docs[0]); err != nil {
		return windowOutput{}, err
	}
	if out.hi, err = parseBound(docs[1]); err != nil {
		return windowOutput{}, err
	}
	return out, nil
}

// span resolves the window for position i of a partition of size n. The
// result is a half-open range that may be empty.
func (w windowOutput) span(i, n int) (int, int) {
	lo, hi := 0, n
	if !w.lo.unbounded {
		lo = max(i+w.lo.offset, 0)
	}
	if !w.hi.unbounded {
		hi = min(i+w.hi.offset+1, n)
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// setWindowFields partitions docs, sorts each partition and adds one field
// per output computed over a sliding window of documents.
func setWindowFields(docs []map[string]any, arg any) ([]map[string]any, error) {
	spec, ok := asMap(arg)
	if !ok {
		return nil, fmt.Errorf("%w: $setWindowFields needs an object", ErrInvalidStage)
	}
	outSpec, ok := asMap(spec["output"])
	if !ok || len(outSpec) == 0 {
		return nil, fmt.Errorf("%w: $setWindowFields needs output fields", ErrInvalidStage)
	}
	outputs := make([]windowOutput, 0, len(outSpec))
	for _, field := range sortedKeys(outSpec) {
		o, err := parseWindowOutput(field, outSpec[field])
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
	}

	partitions, err := partition(docs, spec["partitionBy"])
	if err != nil {
		return nil, err
	}
	if sortBy, ok := spec["sortBy"]; ok {
		keys, err := parseSort(sortBy)
		if err != nil {
			return nil, err
		}
		for _, p := range partitions {
			sortDocs(p, keys)
		}
	}

	result := make([]map[string]any, 0, len(docs))
	for _, p := range partitions {
		added := make([]map[string]any, len(p))
		for i := range p {
			added[i] = map[string]any{}
		}
		for _, o := range outputs {
			values := make([]any, len(p))
			for i, d := range p {
				if values[i], err = Eval(d, o.acc.expr); err != nil {
					return nil, err
				}
			}
			if o.acc.op == "$sum" && o.lo.unbounded {
				// Unbounded lower edge: prefix sums.
				runningSum(values, o, added)
				continue
			}
			for i := range p {
				lo, hi := o.span(i, len(p))
				added[i][o.field] = accumulate(o.acc.op, values[lo:hi])
			}
		}
		for i, d := range p {
			out := d
			for _, o := range outputs {
				out = setPath(out, o.field, added[i][o.field])
			}
			result = append(result, out)
		}
	}
	return result, nil
}

func runningSum(values []any, o windowOutput, added []map[string]any) {
	n := len(values)
	prefix := make([]float64, n+1)
	for i, v := range values {
		f, _ := toFloat(v)
		prefix[i+1] = prefix[i] + f
	}
	for i := range values {
		_, hi := o.span(i, n)
		added[i][o.field] = prefix[hi]
	}
}

// partition groups docs by the partitionBy expression, keeping the order in
// which each partition is first seen.
func partition(docs []map[string]any, expr any) ([][]map[string]any, error) {
	if expr == nil {
		return [][]map[string]any{append([]map[string]any(nil), docs...)}, nil
	}
	var order []string
	groups := map[string][]map[string]any{}
	for _, d := range docs {
		key, err := Eval(d, expr)
		if err != nil {
			return nil, err
		}
		k, err := groupKey(key)
		if err != nil {
			return nil, err
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], d)
	}
	out := make([][]map[string]any, len(order))
	for i, k := range order {
		out[i] = groups[k]
	}
	return out, nil
}

// groupKey returns a canonical string for a grouping value. Numbers of
// different Go types with the same value share a key.
func groupKey(v any) (string, error) {
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return string(data), nil
}

func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	if m, ok := asMap(v); ok {
		out := maps.Clone(m)
		for k, e := range out {
			out[k] = normalize(e)
		}
		return out
	}
	if arr, ok := v.([]any); ok {
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}
