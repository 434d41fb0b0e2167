// Package record holds the generic decoded value model that module
// description files are read into: strings, booleans, numbers, ordered lists
// and string-keyed mappings. Everything above it consumes these shapes
// through the small accessors defined here.
package record

// Map is a decoded mapping from string keys to values.
type Map = map[string]any

// AsMap returns v as a mapping. Mappings decoded with non-string keys are
// converted when every key is a string.
func AsMap(v any) (Map, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(Map, len(m))
		for k, val := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

// AsList returns v as an ordered list.
func AsList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

// AsString returns v as a string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsInt returns v as an int. Floats are accepted when they are integral.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// String returns m[key] when it is a string, or "".
func String(m Map, key string) string {
	s, _ := AsString(m[key])
	return s
}

// Bool returns m[key] when it is a boolean, or false.
func Bool(m Map, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// List returns m[key] when it is a list.
func List(m Map, key string) ([]any, bool) {
	return AsList(m[key])
}

// Nested returns m[key] when it is a mapping.
func Nested(m Map, key string) (Map, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	return AsMap(v)
}

// Location reads the optional "location" field, a two element
// [line, column] pair.
func Location(m Map) (line, col int, ok bool) {
	loc, isList := List(m, "location")
	if !isList || len(loc) != 2 {
		return 0, 0, false
	}
	line, lok := AsInt(loc[0])
	col, cok := AsInt(loc[1])
	if !lok || !cok {
		return 0, 0, false
	}
	return line, col, true
}
