package engine

import (
	"maps"
	"strconv"
	"strings"
)

// resolve returns the values found at a dotted path. Arrays along the path
// are traversed element by element unless the segment is a numeric index.
func resolve(v any, path string) ([]any, bool) {
	return resolveParts(v, strings.Split(path, "."))
}

func resolveParts(v any, parts []string) ([]any, bool) {
	if len(parts) == 0 {
		return []any{v}, true
	}
	if m, ok := asMap(v); ok {
		child, ok := m[parts[0]]
		if !ok {
			return nil, false
		}
		return resolveParts(child, parts[1:])
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	if idx, err := strconv.Atoi(parts[0]); err == nil {
		if idx < 0 || idx >= len(arr) {
			return nil, false
		}
		return resolveParts(arr[idx], parts[1:])
	}
	var out []any
	found := false
	for _, e := range arr {
		if _, ok := asMap(e); !ok {
			continue
		}
		if vals, ok := resolveParts(e, parts); ok {
			out = append(out, vals...)
			found = true
		}
	}
	return out, found
}

// get returns the single value at a dotted path, nil when missing.
func get(doc map[string]any, path string) any {
	vals, ok := resolve(doc, path)
	switch {
	case !ok || len(vals) == 0:
		return nil
	case len(vals) == 1:
		return vals[0]
	default:
		return vals
	}
}

// setPath returns a copy of doc with path set to v. Maps along the path are
// copied; doc itself is not modified.
func setPath(doc map[string]any, path string, v any) map[string]any {
	head, rest, nested := strings.Cut(path, ".")
	out := maps.Clone(doc)
	if out == nil {
		out = map[string]any{}
	}
	if !nested {
		out[head] = v
		return out
	}
	child, _ := asMap(out[head])
	out[head] = setPath(child, rest, v)
	return out
}

// unsetPath returns a copy of doc without path.
func unsetPath(doc map[string]any, path string) map[string]any {
	head, rest, nested := strings.Cut(path, ".")
	cur, ok := doc[head]
	if !ok {
		return doc
	}
	out := maps.Clone(doc)
	if !nested {
		delete(out, head)
		return out
	}
	if child, ok := asMap(cur); ok {
		out[head] = unsetPath(child, rest)
	}
	return out
}
