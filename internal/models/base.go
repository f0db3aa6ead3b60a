package models

import (
	"strconv"
)

// Variables represents a JSON object for storing arbitrary data
type Variables map[string]interface{}

// String returns the value under key rendered as a string.
func (v Variables) String(key string) string {
	switch val := v[key].(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// Int returns the numeric value under key, or def when absent or not a number.
func (v Variables) Int(key string, def int64) int64 {
	switch val := v[key].(type) {
	case float64:
		return int64(val)
	case int:
		return int64(val)
	case int64:
		return val
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the boolean value under key, or def when absent.
func (v Variables) Bool(key string, def bool) bool {
	switch val := v[key].(type) {
	case bool:
		return val
	case float64:
		return val != 0
	}
	return def
}

// Map returns the nested object under key, or an empty map.
func (v Variables) Map(key string) Variables {
	if m, ok := v[key].(map[string]interface{}); ok {
		return Variables(m)
	}
	return Variables{}
}

// Has reports whether key is present.
func (v Variables) Has(key string) bool {
	_, ok := v[key]
	return ok
}
