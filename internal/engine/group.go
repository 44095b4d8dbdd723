package engine

import "fmt"

// GroupIDField holds the grouping key in $group output documents.
const GroupIDField = "_id"

func group(docs []map[string]any, arg any) ([]map[string]any, error) {
	spec, ok := asMap(arg)
	if !ok {
		return nil, fmt.Errorf("%w: $group needs an object", ErrInvalidStage)
	}
	idExpr, ok := spec[GroupIDField]
	if !ok {
		return nil, fmt.Errorf("%w: $group needs an %s", ErrInvalidStage, GroupIDField)
	}
	fields := make([]string, 0, len(spec))
	accs := map[string]accumulatorSpec{}
	for _, f := range sortedKeys(spec) {
		if f == GroupIDField {
			continue
		}
		acc, err := parseAccumulator(f, spec[f])
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		accs[f] = acc
	}

	type bucket struct {
		id     any
		values map[string][]any
	}
	var order []string
	buckets := map[string]*bucket{}
	for _, d := range docs {
		id, err := Eval(d, idExpr)
		if err != nil {
			return nil, err
		}
		key, err := groupKey(id)
		if err != nil {
			return nil, err
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{id: id, values: map[string][]any{}}
			buckets[key] = b
			order = append(order, key)
		}
		for _, f := range fields {
			v, err := Eval(d, accs[f].expr)
			if err != nil {
				return nil, err
			}
			b.values[f] = append(b.values[f], v)
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		doc := map[string]any{GroupIDField: b.id}
		for _, f := range fields {
			doc[f] = accumulate(accs[f].op, b.values[f])
		}
		out = append(out, doc)
	}
	return out, nil
}
