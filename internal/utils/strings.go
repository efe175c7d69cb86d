package utils

import (
	"fmt"
	"strings"
)

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// KeyValue is one "key=value" pair from a ParseKeyValueList input.
type KeyValue struct {
	Key   string
	Value string
}

// ParseKeyValueList parses "k1=v1;k2=v2" into ordered pairs.
// Newlines also separate pairs. Values may contain '='.
// Returns nil for empty input.
func ParseKeyValueList(s string) ([]KeyValue, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})

	var result []KeyValue
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", part)
		}
		result = append(result, KeyValue{Key: key, Value: value})
	}
	return result, nil
}
