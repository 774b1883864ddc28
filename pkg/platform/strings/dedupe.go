// Package strings provides small string-slice utilities shared by config
// parsing.
package strings

import "strings"

// DedupeAndTrim trims whitespace, drops empties and removes duplicates while
// preserving order. Used for comma-separated env lists (brokers, unknowns).
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
