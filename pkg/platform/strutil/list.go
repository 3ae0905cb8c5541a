// Package strutil cleans list-valued configuration.
package strutil

import "strings"

// CleanList trims each value, drops blanks and keeps the first occurrence of
// each duplicate, in order. A nil input stays nil.
func CleanList(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
