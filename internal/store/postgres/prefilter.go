package postgres

import (
	"encoding/json"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// prefilter translates the parts of a $match filter that Postgres can
// evaluate into a WHERE condition. The condition selects a superset of the
// documents the engine would match: anything it cannot express exactly
// (regex, negation, null, dotted paths) is left out and checked in memory.
// ok is false when nothing could be pushed down.
//
// Stored documents are always written by encoding/json from float64
// numbers, so JSONB numeric equality agrees with float64 equality.
func prefilter(filter map[string]any) (sq.Sqlizer, bool) {
	var conds sq.And
	for _, field := range sortedFields(filter) {
		cond := filter[field]
		switch field {
		case "$and":
			if c, ok := prefilterAll(cond, false); ok {
				conds = append(conds, c)
			}
			continue
		case "$or":
			if c, ok := prefilterAll(cond, true); ok {
				conds = append(conds, c)
			}
			continue
		}
		if strings.HasPrefix(field, "$") || strings.Contains(field, ".") || field == "" {
			continue
		}
		if c, ok := fieldPrefilter(field, cond); ok {
			conds = append(conds, c)
		}
	}
	if len(conds) == 0 {
		return nil, false
	}
	return conds, true
}

// prefilterAll pushes down $and (any) or $or (only when every clause can
// be expressed).
func prefilterAll(v any, or bool) (sq.Sqlizer, bool) {
	clauses, ok := v.([]any)
	if !ok {
		return nil, false
	}
	var parts []sq.Sqlizer
	for _, c := range clauses {
		m, ok := c.(map[string]any)
		if !ok {
			return nil, false
		}
		p, ok := prefilter(m)
		if !ok {
			if or {
				return nil, false
			}
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return nil, false
	}
	if or {
		return sq.Or(parts), true
	}
	return sq.And(parts), true
}

func fieldPrefilter(field string, cond any) (sq.Sqlizer, bool) {
	ops, isOps := operators(cond)
	if !isOps {
		return equals(field, cond)
	}
	var conds sq.And
	for _, op := range sortedFields(ops) {
		arg := ops[op]
		switch op {
		case "$eq":
			if c, ok := equals(field, arg); ok {
				conds = append(conds, c)
			}
		case "$in":
			list, ok := arg.([]any)
			if !ok || len(list) == 0 {
				continue
			}
			var alts sq.Or
			for _, v := range list {
				c, ok := equals(field, v)
				if !ok {
					alts = nil
					break
				}
				alts = append(alts, c)
			}
			if len(alts) > 0 {
				conds = append(conds, alts)
			}
		case "$gt", "$gte", "$lt", "$lte":
			if c, ok := compare(field, op, arg); ok {
				conds = append(conds, c)
			}
		case "$exists":
			if b, ok := arg.(bool); ok && b {
				conds = append(conds, sq.Expr("jsonb_exists(data, ?)", field))
			}
		}
	}
	if len(conds) == 0 {
		return nil, false
	}
	return conds, true
}

// equals matches the value itself or an array holding it.
func equals(field string, v any) (sq.Sqlizer, bool) {
	if v == nil {
		return nil, false
	}
	whole, err := json.Marshal(map[string]any{field: v})
	if err != nil {
		return nil, false
	}
	element, err := json.Marshal(map[string]any{field: []any{v}})
	if err != nil {
		return nil, false
	}
	return sq.Expr("(data @> ?::jsonb OR data @> ?::jsonb)", string(whole), string(element)), true
}

var sqlComparison = map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}

// compare only matches values of the operand's JSON type; arrays always
// pass since any element may satisfy the bound.
func compare(field, op string, v any) (sq.Sqlizer, bool) {
	sqlOp := sqlComparison[op]
	switch t := v.(type) {
	case float64, int, int64:
		return sq.Expr(`CASE jsonb_typeof(data -> ?::text)
			WHEN 'number' THEN (data ->> ?::text)::float8 `+sqlOp+` ?::float8
			WHEN 'array' THEN TRUE
			ELSE FALSE END`, field, field, t), true
	case string:
		return sq.Expr(`CASE jsonb_typeof(data -> ?::text)
			WHEN 'string' THEN (data ->> ?::text) COLLATE "C" `+sqlOp+` ?
			WHEN 'array' THEN TRUE
			ELSE FALSE END`, field, field, t), true
	}
	return nil, false
}

func operators(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
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

func sortedFields(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
