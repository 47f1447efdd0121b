// Package git matches workspace paths against gitignore-style exclude patterns.
package git

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// PatternMatcher reports whether a workspace-relative path is excluded.
// The zero value and a matcher built from no patterns exclude nothing.
type PatternMatcher struct {
	matcher gitignore.Matcher
}

// NewPatternMatcher parses patterns in .gitignore syntax. Blank lines and
// comments are skipped; later patterns override earlier ones and "!" negates.
func NewPatternMatcher(patterns []string) *PatternMatcher {
	var parsed []gitignore.Pattern
	for _, line := range patterns {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed = append(parsed, gitignore.ParsePattern(line, nil))
	}
	if len(parsed) == 0 {
		return &PatternMatcher{}
	}
	return &PatternMatcher{matcher: gitignore.NewMatcher(parsed)}
}

// Excluded reports whether relPath matches. Directory-only patterns such as
// "build/" need isDir set.
func (m *PatternMatcher) Excluded(relPath string, isDir bool) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	segments := splitPath(relPath)
	if len(segments) == 0 {
		return false
	}
	return m.matcher.Match(segments, isDir)
}

// splitPath splits a path into segments for gitignore matching.
// It normalizes path separators and filters out empty and "." segments.
func splitPath(path string) []string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			segments = append(segments, part)
		}
	}
	return segments
}
