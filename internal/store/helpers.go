package store

import (
	"encoding/json"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// marshalNames converts a list of qualified type names to JSON text for storage.
func marshalNames(names []string) string {
	if len(names) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(names)
	return string(b)
}

// unmarshalNames converts JSON text back to []string.
func unmarshalNames(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var names []string
	_ = json.Unmarshal([]byte(s), &names)
	return names
}

// escapeLike escapes SQL LIKE special characters (% and _) with backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// globToLike turns a "*" wildcard pattern into an escaped LIKE pattern.
func globToLike(pattern string) string {
	return strings.ReplaceAll(escapeLike(pattern), "*", "%")
}
