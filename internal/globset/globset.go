// Package globset implements the ignore/early/sensitive glob matching used
// throughout the reconciliation engine (spec §4.5, §4.7): a path matches a
// Set if any of its patterns match prefix-wise, where a trailing "*" or a
// single "**" segment collapses to a subtree match.
package globset

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is an immutable collection of glob patterns (always /-rooted, as
// produced by the script host's IgnorePath/EarlyConfig/SensitiveFile
// instructions).
type Set struct {
	patterns []string
}

// New builds a Set from the given patterns. Patterns are not validated
// until Match is called on a matching attempt for the first time; a
// malformed pattern never matches anything rather than erroring, since
// ignore sets accumulate from many sources and one bad entry should not
// break every other one.
func New(patterns ...string) *Set {
	cp := make([]string, len(patterns))
	copy(cp, patterns)
	return &Set{patterns: cp}
}

// Add returns a new Set with pattern appended; Set values are treated as
// immutable once built (matching spec §3's FileEntry/State immutability
// conventions).
func (s *Set) Add(pattern string) *Set {
	out := &Set{patterns: make([]string, len(s.patterns)+1)}
	copy(out.patterns, s.patterns)
	out.patterns[len(s.patterns)] = pattern
	return out
}

// Patterns returns the patterns making up the set, in insertion order.
func (s *Set) Patterns() []string {
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Match reports whether path is covered by any pattern in the set. A
// pattern matching a strict prefix directory of path also counts as a
// match: "/x/**" and "/x/*" both cover everything beneath "/x", matching
// spec §4.5's "subtree ignore" semantics.
func (s *Set) Match(path string) bool {
	path = strings.TrimPrefix(path, "/")
	for _, pat := range s.patterns {
		if matchOne(strings.TrimPrefix(pat, "/"), path) {
			return true
		}
	}
	return false
}

func matchOne(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	if err == nil && ok {
		return true
	}
	// A trailing "*" or "**" segment also matches the directory itself and
	// everything below it, not just doublestar's own notion of what the
	// pattern literally matches (doublestar already handles "**" as
	// subtree-matching, but a plain trailing "*" like "/x/*" is file-glob
	// semantics by default; spec §4.5 wants it to collapse to a subtree
	// ignore too).
	if strings.HasSuffix(pattern, "/*") || strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(strings.TrimSuffix(pattern, "/**"), "/*")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
