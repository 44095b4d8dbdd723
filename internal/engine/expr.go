package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Eval evaluates an aggregation expression against doc. Strings starting
// with "$" are field references, single-key objects with a "$" key are
// operators, other objects and arrays are evaluated element-wise, and
// everything else is a literal.
func Eval(doc map[string]any, expr any) (any, error) {
	switch e := expr.(type) {
	case string:
		if e == "$$ROOT" {
			return doc, nil
		}
		if strings.HasPrefix(e, "$") && len(e) > 1 {
			return get(doc, e[1:]), nil
		}
		return e, nil
	case []any:
		out := make([]any, len(e))
		for i, item := range e {
			v, err := Eval(doc, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	m, ok := asMap(expr)
	if !ok {
		return expr, nil
	}
	if len(m) == 1 {
		for op, arg := range m {
			if strings.HasPrefix(op, "$") {
				return evalOperator(doc, op, arg)
			}
		}
	}
	out := make(map[string]any, len(m))
	for k, item := range m {
		v, err := Eval(doc, item)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func evalOperator(doc map[string]any, op string, arg any) (any, error) {
	if op == "$literal" {
		return arg, nil
	}
	args, err := evalArgs(doc, arg)
	if err != nil {
		return nil, err
	}

	switch op {
	case "$add":
		return foldNumbers(op, args, 0, func(acc, v float64) float64 { return acc + v })
	case "$multiply":
		return foldNumbers(op, args, 1, func(acc, v float64) float64 { return acc * v })
	case "$subtract":
		a, b, null, err := numberPair(op, args)
		if err != nil || null {
			return nil, err
		}
		return a - b, nil
	case "$divide":
		a, b, null, err := numberPair(op, args)
		if err != nil || null {
			return nil, err
		}
		if b == 0 {
			return nil, fmt.Errorf("%w: $divide by zero", ErrInvalidExpression)
		}
		return a / b, nil
	case "$round":
		return round(args)
	case "$toString":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: $toString takes one argument", ErrInvalidExpression)
		}
		return toString(args[0])
	case "$concat":
		var b strings.Builder
		for _, a := range args {
			if a == nil {
				return nil, nil
			}
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("%w: $concat only supports strings", ErrInvalidExpression)
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case "$ifNull":
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: $ifNull takes at least two arguments", ErrInvalidExpression)
		}
		for _, a := range args[:len(args)-1] {
			if a != nil {
				return a, nil
			}
		}
		return args[len(args)-1], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
}

// evalArgs evaluates an operator argument, treating a non-array argument
// as a single-element list.
func evalArgs(doc map[string]any, arg any) ([]any, error) {
	list, ok := arg.([]any)
	if !ok {
		list = []any{arg}
	}
	out := make([]any, len(list))
	for i, a := range list {
		v, err := Eval(doc, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func foldNumbers(op string, args []any, start float64, fn func(acc, v float64) float64) (any, error) {
	acc := start
	for _, a := range args {
		if a == nil {
			return nil, nil
		}
		f, ok := toFloat(a)
		if !ok {
			return nil, fmt.Errorf("%w: %s only supports numbers, got %T", ErrInvalidExpression, op, a)
		}
		acc = fn(acc, f)
	}
	return acc, nil
}

func numberPair(op string, args []any) (a, b float64, null bool, err error) {
	if len(args) != 2 {
		return 0, 0, false, fmt.Errorf("%w: %s takes two arguments", ErrInvalidExpression, op)
	}
	if args[0] == nil || args[1] == nil {
		return 0, 0, true, nil
	}
	a, okA := toFloat(args[0])
	b, okB := toFloat(args[1])
	if !okA || !okB {
		return 0, 0, false, fmt.Errorf("%w: %s only supports numbers", ErrInvalidExpression, op)
	}
	return a, b, false, nil
}

// round rounds half to even at the given number of decimal places.
func round(args []any) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, fmt.Errorf("%w: $round takes one or two arguments", ErrInvalidExpression)
	}
	if args[0] == nil {
		return nil, nil
	}
	v, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: $round only supports numbers", ErrInvalidExpression)
	}
	places := 0.0
	if len(args) == 2 {
		p, ok := toFloat(args[1])
		if !ok || p != math.Trunc(p) || p < -20 || p > 100 {
			return nil, fmt.Errorf("%w: invalid $round place", ErrInvalidExpression)
		}
		places = p
	}
	if places == 0 {
		return math.RoundToEven(v), nil
	}
	scale := math.Pow(10, places)
	return math.RoundToEven(v*scale) / scale, nil
}

func toString(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return string(data), nil
}
