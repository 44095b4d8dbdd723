package engine

import "fmt"

// accumulators usable in $group and $setWindowFields.
var accumulators = map[string]bool{
	"$sum": true, "$avg": true, "$min": true, "$max": true,
	"$first": true, "$last": true, "$push": true, "$count": true,
}

// accumulatorSpec is a parsed {"$op": expr} output definition.
type accumulatorSpec struct {
	op   string
	expr any
}

func parseAccumulator(field string, v any, extra ...string) (accumulatorSpec, error) {
	m, ok := asMap(v)
	if !ok {
		return accumulatorSpec{}, fmt.Errorf("%w: %q must be an accumulator object", ErrInvalidStage, field)
	}
	var spec accumulatorSpec
	for k, arg := range m {
		if contains(extra, k) {
			continue
		}
		if !accumulators[k] {
			return accumulatorSpec{}, fmt.Errorf("%w: accumulator %s", ErrUnsupportedOperator, k)
		}
		if spec.op != "" {
			return accumulatorSpec{}, fmt.Errorf("%w: %q has more than one accumulator", ErrInvalidStage, field)
		}
		spec = accumulatorSpec{op: k, expr: arg}
	}
	if spec.op == "" {
		return accumulatorSpec{}, fmt.Errorf("%w: %q has no accumulator", ErrInvalidStage, field)
	}
	return spec, nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// accumulate folds the evaluated values of a group or window.
func accumulate(op string, values []any) any {
	switch op {
	case "$sum":
		sum := 0.0
		for _, v := range values {
			if f, ok := toFloat(v); ok {
				sum += f
			}
		}
		return sum
	case "$avg":
		sum, n := 0.0, 0
		for _, v := range values {
			if f, ok := toFloat(v); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return nil
		}
		return sum / float64(n)
	case "$min", "$max":
		var best any
		for _, v := range values {
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := Compare(v, best)
			if (op == "$min" && c < 0) || (op == "$max" && c > 0) {
				best = v
			}
		}
		return best
	case "$first":
		if len(values) == 0 {
			return nil
		}
		return values[0]
	case "$last":
		if len(values) == 0 {
			return nil
		}
		return values[len(values)-1]
	case "$push":
		out := make([]any, len(values))
		copy(out, values)
		return out
	case "$count":
		return float64(len(values))
	}
	return nil
}
