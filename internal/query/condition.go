package query

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Condition is one field/operator/value triple from a client filter.
// A Condition decoded from JSON records whether "value" was present at all,
// so that an explicit null can be told apart from a missing value.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`

	valueSet bool
}

// Where builds a Condition with its value set.
func Where(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value, valueSet: true}
}

// HasValue reports whether the condition carried a value.
func (c Condition) HasValue() bool {
	return c.valueSet
}

// UnmarshalJSON decodes a condition without ever failing on type mismatches:
// a non-string field or operator is left empty so that the compiler can drop
// the condition instead of rejecting the whole query.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object; leave the condition empty (malformed).
		*c = Condition{}
		return nil
	}

	*c = Condition{}
	if v, ok := raw["field"]; ok {
		_ = json.Unmarshal(v, &c.Field)
	}
	if v, ok := raw["operator"]; ok {
		var op string
		if json.Unmarshal(v, &op) == nil {
			c.Operator = Operator(op)
		}
	}
	if v, ok := raw["value"]; ok {
		val, err := decodeValue(v)
		if err != nil {
			return err
		}
		c.Value = val
		c.valueSet = true
	}
	return nil
}

// decodeValue decodes a JSON value into plain Go values (float64 numbers,
// map[string]any objects, []any arrays).
func decodeValue(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Coerce converts a string that parses fully as a finite number into a
// float64 and the literals "true"/"false" into booleans. Every other value
// is returned unchanged.
func Coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, ok := parseFiniteNumber(s); ok {
		return n
	}
	return s
}

func parseFiniteNumber(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	// ParseFloat accepts hex floats and "inf"/"nan"; only plain decimal
	// notation counts as a number here.
	if strings.ContainsAny(t, "xXpPiInN_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// coerceAll applies Coerce to v, or to each element when v is an array.
func coerceAll(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return Coerce(v)
	}
	out := make([]any, len(arr))
	for i, e := range arr {
		out[i] = Coerce(e)
	}
	return out
}

// asArray wraps a non-array value in a one-element array.
func asArray(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}

// truthy converts an exists-operator value to a boolean.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case string:
		return t != ""
	}
	return true
}
