// Package engine evaluates document pipelines in memory.
//
// The store fetches candidate documents and hands them to Run together with
// the stage sequence; Run is the authority on which documents match and in
// which order they are returned. Supported stages are $match, $sort, $skip,
// $limit, $addFields/$set, $unset, $project, $setWindowFields, $group and
// $count.
package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/alfredjeanlab/docq/internal/model"
)

var (
	// ErrUnsupportedStage is returned for a stage operator the engine does not implement.
	ErrUnsupportedStage = errors.New("unsupported pipeline stage")
	// ErrUnsupportedOperator is returned for an unknown query or expression operator.
	ErrUnsupportedOperator = errors.New("unsupported operator")
	// ErrInvalidStage is returned for a stage whose arguments are malformed.
	ErrInvalidStage = errors.New("invalid pipeline stage")
	// ErrInvalidExpression is returned when an expression cannot be evaluated.
	ErrInvalidExpression = errors.New("invalid expression")
)

// Run executes stages over docs in order. The input documents are not
// modified; documents produced by earlier stages may share nested values
// with them.
func Run(docs []model.Document, stages []map[string]any) ([]model.Document, error) {
	cur := make([]map[string]any, len(docs))
	for i, d := range docs {
		cur[i] = d
	}
	for i, stage := range stages {
		next, err := runStage(cur, stage)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		cur = next
	}
	out := make([]model.Document, len(cur))
	for i, d := range cur {
		out[i] = d
	}
	return out, nil
}

// Count returns the number of docs matching filter.
func Count(docs []model.Document, filter map[string]any) (int, error) {
	n := 0
	for _, d := range docs {
		ok, err := Match(d, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func runStage(docs []map[string]any, stage map[string]any) ([]map[string]any, error) {
	if len(stage) != 1 {
		return nil, fmt.Errorf("%w: a stage must have exactly one operator", ErrInvalidStage)
	}
	for op, arg := range stage {
		switch op {
		case "$match":
			return matchStage(docs, arg)
		case "$sort":
			keys, err := parseSort(arg)
			if err != nil {
				return nil, err
			}
			out := append([]map[string]any(nil), docs...)
			sortDocs(out, keys)
			return out, nil
		case "$skip":
			n, err := count(op, arg, true)
			if err != nil {
				return nil, err
			}
			return docs[min(n, len(docs)):], nil
		case "$limit":
			n, err := count(op, arg, false)
			if err != nil {
				return nil, err
			}
			return docs[:min(n, len(docs))], nil
		case "$addFields", "$set":
			return addFields(docs, arg)
		case "$unset":
			return unset(docs, arg)
		case "$project":
			return project(docs, arg)
		case "$setWindowFields":
			return setWindowFields(docs, arg)
		case "$group":
			return group(docs, arg)
		case "$count":
			return countStage(docs, arg)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedStage, op)
		}
	}
	return nil, nil
}

func matchStage(docs []map[string]any, arg any) ([]map[string]any, error) {
	filter, ok := asMap(arg)
	if !ok {
		return nil, fmt.Errorf("%w: $match needs an object", ErrInvalidStage)
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		ok, err := Match(d, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// count reads the argument of $skip or $limit.
func count(op string, arg any, allowZero bool) (int, error) {
	f, ok := toFloat(arg)
	if !ok || f != float64(int(f)) || f < 0 || (f == 0 && !allowZero) {
		return 0, fmt.Errorf("%w: %s needs a positive integer, got %v", ErrInvalidStage, op, arg)
	}
	return int(f), nil
}

func addFields(docs []map[string]any, arg any) ([]map[string]any, error) {
	spec, ok := asMap(arg)
	if !ok {
		return nil, fmt.Errorf("%w: $addFields needs an object", ErrInvalidStage)
	}
	fields := sortedKeys(spec)
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		next := d
		for _, f := range fields {
			v, err := Eval(d, spec[f])
			if err != nil {
				return nil, err
			}
			next = setPath(next, f, v)
		}
		out[i] = next
	}
	return out, nil
}

func unset(docs []map[string]any, arg any) ([]map[string]any, error) {
	var fields []string
	switch t := arg.(type) {
	case string:
		fields = []string{t}
	case []string:
		fields = t
	case []any:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: $unset fields must be strings", ErrInvalidStage)
			}
			fields = append(fields, s)
		}
	default:
		return nil, fmt.Errorf("%w: $unset needs a field name or list", ErrInvalidStage)
	}
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		for _, f := range fields {
			d = unsetPath(d, f)
		}
		out[i] = d
	}
	return out, nil
}

// project keeps (inclusion) or drops (exclusion) fields. The id field is
// kept in inclusion mode unless explicitly excluded. Non-boolean values are
// expressions computed into the output.
func project(docs []map[string]any, arg any) ([]map[string]any, error) {
	spec, ok := asMap(arg)
	if !ok || len(spec) == 0 {
		return nil, fmt.Errorf("%w: $project needs a non-empty object", ErrInvalidStage)
	}
	include, exclude := map[string]bool{}, map[string]bool{}
	computed := map[string]any{}
	for f, v := range spec {
		switch flag, isFlag := projectionFlag(v); {
		case !isFlag:
			computed[f] = v
		case flag:
			include[f] = true
		default:
			exclude[f] = true
		}
	}
	idExcluded := exclude[model.IDField]
	delete(exclude, model.IDField)
	inclusion := len(include) > 0 || len(computed) > 0
	if inclusion && len(exclude) > 0 {
		return nil, fmt.Errorf("%w: $project cannot mix inclusion and exclusion", ErrInvalidStage)
	}
	if !inclusion && idExcluded {
		exclude[model.IDField] = true
	}

	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		if !inclusion {
			next := d
			for f := range exclude {
				next = unsetPath(next, f)
			}
			out[i] = next
			continue
		}
		next := map[string]any{}
		if !idExcluded {
			if v, ok := d[model.IDField]; ok {
				next[model.IDField] = v
			}
		}
		for _, f := range sortedKeysBool(include) {
			if vals, ok := resolve(d, f); ok && len(vals) > 0 {
				next = setPath(next, f, get(d, f))
			}
		}
		for _, f := range sortedKeys(computed) {
			v, err := Eval(d, computed[f])
			if err != nil {
				return nil, err
			}
			next = setPath(next, f, v)
		}
		out[i] = next
	}
	return out, nil
}

func projectionFlag(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	if f, ok := toFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

func sortedKeysBool(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func countStage(docs []map[string]any, arg any) ([]map[string]any, error) {
	field, ok := arg.(string)
	if !ok || field == "" || strings.HasPrefix(field, "$") || strings.Contains(field, ".") {
		return nil, fmt.Errorf("%w: $count needs a plain field name", ErrInvalidStage)
	}
	if len(docs) == 0 {
		return []map[string]any{}, nil
	}
	return []map[string]any{{field: float64(len(docs))}}, nil
}
