package engine

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/alfredjeanlab/docq/internal/model"
)

// class is a value's position in the cross-type sort order.
type class int

const (
	classNull class = iota
	classNumber
	classString
	classObject
	classArray
	classBool
)

func classOf(v any) class {
	switch v.(type) {
	case nil:
		return classNull
	case bool:
		return classBool
	case string:
		return classString
	case map[string]any, model.Document:
		return classObject
	case []any:
		return classArray
	}
	if _, ok := toFloat(v); ok {
		return classNumber
	}
	return classString
}

// toFloat converts any Go or JSON number to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case model.Document:
		return map[string]any(m), true
	}
	return nil, false
}

// Compare orders two values. Values of different types order as
// null < number < string < object < array < bool.
func Compare(a, b any) int {
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch ca {
	case classNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return cmp.Compare(fa, fb)
	case classString:
		return strings.Compare(stringOf(a), stringOf(b))
	case classBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case classArray:
		return compareArrays(a.([]any), b.([]any))
	case classObject:
		ma, _ := asMap(a)
		mb, _ := asMap(b)
		return compareObjects(ma, mb)
	}
	return 0
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func compareArrays(a, b []any) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareObjects(a, b map[string]any) int {
	ka := sortedKeys(a)
	kb := sortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := Compare(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(ka), len(kb))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Equal reports whether a and b are the same type and compare equal.
func Equal(a, b any) bool {
	return classOf(a) == classOf(b) && Compare(a, b) == 0
}
