// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter is a compiled include/exclude glob set. Patterns are compiled (in
// the sense of being validated) once at configuration time; evaluation is
// pure string matching against a RelativePath.
type Filter struct {
	includes []string
	excludes []string
}

// NewFilter validates includes and excludes and returns a Filter. An empty
// includes list matches everything; an empty excludes list excludes
// nothing. Patterns use doublestar syntax: "**" matches any number of path
// components, "*" matches within a single component. A pattern with no "/"
// is anchored at every depth (e.g. "*.txt" matches "a/b/c.txt"), matching
// gsutil/gitignore-style glob conventions rather than requiring a leading
// "**/" to be spelled out explicitly.
func NewFilter(includes, excludes []string) (*Filter, error) {
	anchoredIncludes, err := anchorPatterns(includes)
	if err != nil {
		return nil, err
	}
	anchoredExcludes, err := anchorPatterns(excludes)
	if err != nil {
		return nil, err
	}
	return &Filter{includes: anchoredIncludes, excludes: anchoredExcludes}, nil
}

func anchorPatterns(patterns []string) ([]string, error) {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		anchored := p
		if !strings.Contains(p, "/") {
			anchored = "**/" + p
		}
		if !doublestar.ValidatePattern(anchored) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidGlob, p)
		}
		out[i] = anchored
	}
	return out, nil
}

// Admit reports whether path is admitted: (no includes OR matches some
// include) AND (no excludes OR matches no exclude).
func (f *Filter) Admit(path RelativePath) bool {
	if f == nil {
		return true
	}
	if len(f.includes) > 0 && !matchesAny(f.includes, path) {
		return false
	}
	if len(f.excludes) > 0 && matchesAny(f.excludes, path) {
		return false
	}
	return true
}

func matchesAny(patterns []string, path RelativePath) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, string(path)); ok {
			return true
		}
	}
	return false
}
