package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/docq/internal/model"
)

// Default ordering applied when a spec names neither a sort object nor an
// order-by field.
const (
	DefaultOrderByField   = "id"
	DefaultOrderDirection = "desc"
)

// Spec is the client-supplied description of a list query.
type Spec struct {
	Conditions     []Condition `json:"conditions,omitempty"`
	OrderByField   string      `json:"orderByField,omitempty"`
	OrderDirection string      `json:"orderDirection,omitempty"`
	LimitCount     *int        `json:"limitCount,omitempty"`
	OffsetCount    *int        `json:"offsetCount,omitempty"`
	// StartAfter is kept raw: it may arrive as a number or a numeric string
	// and only takes effect when it parses to a valid integer.
	StartAfter any `json:"startAfter,omitempty"`
	// SortObject overrides OrderByField/OrderDirection. Key order is preserved.
	SortObject SortSpec `json:"sortObject,omitempty"`
}

// Parse decodes the text of a "query" parameter into a Spec. Text that is not
// well-formed JSON fails with ErrInvalidQuerySyntax; every other anomaly is
// left for the compiler to tolerate or reject. Empty text is an empty Spec.
func Parse(text string) (Spec, error) {
	var spec Spec
	if strings.TrimSpace(text) == "" {
		return spec, nil
	}
	if !json.Valid([]byte(text)) {
		return spec, fmt.Errorf("%w: query is not valid JSON", ErrInvalidQuerySyntax)
	}
	if err := json.Unmarshal([]byte(text), &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidQuerySyntax, err)
	}
	return spec, nil
}

// UnmarshalJSON decodes a Spec leniently: fields of the wrong type are
// ignored rather than failing the whole query.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Spec{}
	if v, ok := raw["conditions"]; ok {
		var items []json.RawMessage
		if json.Unmarshal(v, &items) == nil {
			s.Conditions = make([]Condition, len(items))
			for i, item := range items {
				if err := json.Unmarshal(item, &s.Conditions[i]); err != nil {
					return err
				}
			}
		}
	}
	if v, ok := raw["orderByField"]; ok {
		_ = json.Unmarshal(v, &s.OrderByField)
	}
	if v, ok := raw["orderDirection"]; ok {
		_ = json.Unmarshal(v, &s.OrderDirection)
	}
	if v, ok := raw["limitCount"]; ok {
		if n, ok := rawInt(v); ok {
			s.LimitCount = &n
		}
	}
	if v, ok := raw["offsetCount"]; ok {
		if n, ok := rawInt(v); ok {
			s.OffsetCount = &n
		}
	}
	if v, ok := raw["startAfter"]; ok {
		val, err := decodeValue(v)
		if err != nil {
			return err
		}
		s.StartAfter = val
	}
	if v, ok := raw["sortObject"]; ok {
		var sort SortSpec
		if json.Unmarshal(v, &sort) == nil {
			s.SortObject = sort
		}
	}
	return nil
}

// rawInt decodes a JSON number or numeric string holding an integer.
func rawInt(data []byte) (int, bool) {
	v, err := decodeValue(data)
	if err != nil {
		return 0, false
	}
	return toInt(v)
}

// toInt converts an integral number or a string holding one to int.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// SortKey and SortSpec are shared with the model so that named query
// execution options decode the same way.
type (
	SortKey  = model.SortKey
	SortSpec = model.SortSpec
)
