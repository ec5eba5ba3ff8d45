package jsonutil

import (
	"encoding/json"
	"fmt"
)

// StringValue converts a decoded JSON value to a string, handling cases where
// the record store or a language model returns numbers or booleans where text
// is expected. Returns empty string for nil.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case json.Number:
		return val.String()
	default:
		// Fallback: re-encode composite values
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// FlexibleStrings flattens a decoded JSON value into its non-empty string
// elements. Scalars become a single-element slice, arrays coerce element-wise,
// nil yields nil. Lookup fields in the record store surface as arrays even
// when they hold one logical value.
func FlexibleStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, 0, len(val))
		for _, s := range val {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := StringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := StringValue(val); s != "" {
			return []string{s}
		}
		return nil
	}
}

// FirstString returns the first non-empty string element of v, or "".
func FirstString(v any) string {
	vals := FlexibleStrings(v)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
