// Package strings provides string normalization utilities.
package strings

import (
	"slices"
	"strings"
)

// Normalize trims and lower-cases a single value.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, Normalize)
}

// NormalizeSet lower-cases, trims, drops empties, de-duplicates and sorts.
// Two inputs holding the same members in any order and casing produce
// identical output.
//
// Example:
//
//	NormalizeSet([]string{" Research", "analytics", "RESEARCH"})
//	// Returns: []string{"analytics", "research"}
func NormalizeSet(values []string) []string {
	out := DedupeAndTrimLower(values)
	slices.Sort(out)
	return out
}

// SplitCSV splits a comma-separated list and normalizes each member.
// Order of first occurrence is preserved.
func SplitCSV(s string) []string {
	return DedupeAndTrimLower(strings.Split(s, ","))
}

func dedupe(values []string, fn func(string) string) []string {
	result := make([]string, 0, len(values))
	if len(values) == 0 {
		return result
	}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		n := fn(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}
	return result
}
