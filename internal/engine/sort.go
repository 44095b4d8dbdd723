package engine

import (
	"fmt"
	"slices"

	"github.com/alfredjeanlab/docq/internal/model"
)

// parseSort accepts an ordered model.SortSpec, an array of single-key
// objects, or an object. Keys of a plain object are applied in lexical
// order because JSON objects stored by Postgres do not keep key order.
func parseSort(v any) (model.SortSpec, error) {
	switch t := v.(type) {
	case model.SortSpec:
		return t, nil
	case []any:
		var out model.SortSpec
		for _, item := range t {
			m, ok := asMap(item)
			if !ok {
				return nil, fmt.Errorf("%w: sort entries must be objects", ErrInvalidStage)
			}
			keys, err := parseSort(m)
			if err != nil {
				return nil, err
			}
			out = append(out, keys...)
		}
		return out, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: sort must be an object", ErrInvalidStage)
	}
	out := make(model.SortSpec, 0, len(m))
	for _, field := range sortedKeys(m) {
		desc, ok := model.ParseDirection(m[field])
		if !ok {
			return nil, fmt.Errorf("%w: invalid sort direction for %q", ErrInvalidStage, field)
		}
		out = append(out, model.SortKey{Field: field, Desc: desc})
	}
	return out, nil
}

// sortDocs sorts docs in place by keys. Ties keep their input order.
func sortDocs(docs []map[string]any, keys model.SortSpec) {
	slices.SortStableFunc(docs, func(a, b map[string]any) int {
		for _, k := range keys {
			c := Compare(get(a, k.Field), get(b, k.Field))
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}
