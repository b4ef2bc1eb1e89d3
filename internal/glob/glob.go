// Package glob decides whether two path patterns can match a common path.
// Patterns are /-separated; within a segment '?' matches one rune and '*'
// any run of runes, and a segment of exactly "**" spans any number of
// segments. The check is purely syntactic, no filesystem access.
package glob

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	MaxTokens    = 50
	MaxWildcards = 10
)

// Validate guards against pathological patterns before they reach the
// overlap check.
func Validate(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("empty pattern")
	}
	tokens, wildcards := 0, 0
	for _, seg := range split(pattern) {
		if seg == "**" {
			tokens++
			wildcards++
			continue
		}
		for _, r := range seg {
			tokens++
			if r == '*' || r == '?' {
				wildcards++
			}
		}
	}
	if tokens > MaxTokens {
		return fmt.Errorf("pattern too complex: %d tokens exceeds limit of %d", tokens, MaxTokens)
	}
	if wildcards > MaxWildcards {
		return fmt.Errorf("pattern too complex: %d wildcards exceeds limit of %d", wildcards, MaxWildcards)
	}
	return nil
}

// Overlaps reports whether some path could satisfy both patterns.
func Overlaps(a, b string) bool {
	return segmentsOverlap(split(a), split(b))
}

func split(pattern string) []string {
	return strings.Split(strings.Trim(filepath.ToSlash(pattern), "/"), "/")
}

// segmentsOverlap walks both segment lists in lockstep; "**" may consume
// zero or more segments on the opposite side. Indices only ever grow, so
// the memoized walk terminates.
func segmentsOverlap(a, b []string) bool {
	type key struct{ i, j int }
	memo := make(map[key]bool)
	var walk func(i, j int) bool
	walk = func(i, j int) bool {
		if i == len(a) && j == len(b) {
			return true
		}
		k := key{i, j}
		if v, ok := memo[k]; ok {
			return v
		}
		var ok bool
		switch {
		case i < len(a) && a[i] == "**":
			ok = walk(i+1, j) || (j < len(b) && walk(i, j+1))
		case j < len(b) && b[j] == "**":
			ok = walk(i, j+1) || (i < len(a) && walk(i+1, j))
		case i < len(a) && j < len(b):
			ok = segmentOverlap(a[i], b[j]) && walk(i+1, j+1)
		}
		memo[k] = ok
		return ok
	}
	return walk(0, 0)
}

// segmentOverlap is the same walk one level down, over runes: '*' may
// consume zero or more runes produced by the other side, '?' pairs with any
// single rune.
func segmentOverlap(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	type key struct{ i, j int }
	memo := make(map[key]bool)
	var walk func(i, j int) bool
	walk = func(i, j int) bool {
		if i == len(ra) && j == len(rb) {
			return true
		}
		k := key{i, j}
		if v, ok := memo[k]; ok {
			return v
		}
		var ok bool
		switch {
		case i < len(ra) && ra[i] == '*':
			ok = walk(i+1, j) || (j < len(rb) && walk(i, j+1))
		case j < len(rb) && rb[j] == '*':
			ok = walk(i, j+1) || (i < len(ra) && walk(i+1, j))
		case i < len(ra) && j < len(rb):
			ok = (ra[i] == '?' || rb[j] == '?' || ra[i] == rb[j]) && walk(i+1, j+1)
		}
		memo[k] = ok
		return ok
	}
	return walk(0, 0)
}
