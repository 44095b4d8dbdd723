package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SortKey is one field of an ordered sort specification.
type SortKey struct {
	Field string
	Desc  bool
}

// SortSpec is an ordered list of sort keys. It encodes to and decodes from a
// JSON object whose key order is significant, e.g. {"date": 1, "id": -1}.
type SortSpec []SortKey

// MarshalJSON writes the sort keys as an object in order, 1 for ascending
// and -1 for descending.
func (s SortSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		if k.Desc {
			buf.WriteString(":-1")
		} else {
			buf.WriteString(":1")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object while keeping key order. Directions may be
// numbers (negative is descending) or the strings asc/desc.
func (s *SortSpec) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sort specification must be an object")
	}
	var keys SortSpec
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		field, _ := tok.(string)
		var dir any
		if err := dec.Decode(&dir); err != nil {
			return err
		}
		desc, ok := ParseDirection(dir)
		if !ok {
			return fmt.Errorf("invalid sort direction for %q", field)
		}
		keys = append(keys, SortKey{Field: field, Desc: desc})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = keys
	return nil
}

// ParseDirection interprets a sort direction value. It returns desc=true for
// negative numbers and "desc"/"descending", desc=false for positive numbers
// and "asc"/"ascending", and ok=false for anything else.
func ParseDirection(v any) (desc bool, ok bool) {
	switch t := v.(type) {
	case float64:
		if t == 0 {
			return false, false
		}
		return t < 0, true
	case int:
		if t == 0 {
			return false, false
		}
		return t < 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "asc", "ascending", "1":
			return false, true
		case "desc", "descending", "-1":
			return true, true
		}
	}
	return false, false
}
