// Package search implements search_files: literal or regex matching over
// workspace files, line by line.
package search

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/helper/content"
	"github.com/vim89/llm4s-sub012/internal/tool/service/git"
)

const truncatedSuffix = "...[truncated]"

// SearchTool handles content searching operations.
type SearchTool struct {
	fs       fileSystem
	resolver pathResolver
	config   *config.Config
}

// NewSearchTool creates a new SearchTool with injected dependencies.
func NewSearchTool(fs fileSystem, resolver pathResolver, cfg *config.Config) *SearchTool {
	if fs == nil {
		panic("fs is required")
	}
	if resolver == nil {
		panic("resolver is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &SearchTool{fs: fs, resolver: resolver, config: cfg}
}

// matcher reports whether a line matches the query.
type matcher func(line string) bool

// searchState is shared across one search call.
type searchState struct {
	match   matcher
	context int
	limit   int
	limits  sandbox.Limits
	seen    map[string]bool
	matches []protocol.SearchMatch
	total   int
}

// Run searches every path in order. Directories are walked recursively
// unless recursive is false, in which case only their direct files are read.
// Binary files and files over maxFileSize are skipped. At most
// maxSearchResults matches are returned; totalMatches counts all of them.
func (t *SearchTool) Run(ctx context.Context, cmd protocol.SearchFiles, limits sandbox.Limits) (*protocol.SearchFilesResponse, error) {
	match, err := buildMatcher(cmd.Query, cmd.SearchType)
	if err != nil {
		return nil, err
	}

	state := &searchState{
		match:   match,
		limit:   limits.MaxSearchResults,
		limits:  limits,
		seen:    make(map[string]bool),
		matches: []protocol.SearchMatch{},
	}
	if cmd.ContextLines != nil {
		state.context = *cmd.ContextLines
	}
	recursive := cmd.Recursive == nil || *cmd.Recursive
	excludes := git.NewPatternMatcher(cmd.ExcludePatterns)

	for _, p := range cmd.Paths {
		abs, err := t.resolver.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := t.fs.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &FileMissingError{Path: p}
			}
			return nil, &StatError{Path: p, Cause: err}
		}

		if !info.IsDir() {
			if err := t.searchFile(ctx, state, abs, info); err != nil {
				return nil, err
			}
			continue
		}
		if err := t.searchDir(ctx, state, abs, recursive, excludes); err != nil {
			return nil, err
		}
	}

	return &protocol.SearchFilesResponse{
		CommandID:    cmd.CommandID,
		Matches:      state.matches,
		IsTruncated:  state.total > len(state.matches),
		TotalMatches: state.total,
	}, nil
}

func buildMatcher(query string, searchType protocol.SearchType) (matcher, error) {
	if searchType == protocol.SearchRegex {
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, &InvalidPatternError{Pattern: query, Cause: err}
		}
		return re.MatchString, nil
	}
	return func(line string) bool { return strings.Contains(line, query) }, nil
}

func (t *SearchTool) searchDir(ctx context.Context, state *searchState, dir string, recursive bool, excludes *git.PatternMatcher) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return &ReadError{Path: path, Cause: err}
			}
			return nil // unreadable subtree
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || excludes.Excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if excludes.Excluded(rel, false) {
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			// Follow file symlinks that stay inside the workspace
			if _, err := t.resolver.Abs(path); err != nil {
				return nil
			}
		}
		info, err := t.fs.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		return t.searchFile(ctx, state, path, info)
	})
}

// searchFile scans one file. Files seen through an earlier path are skipped.
func (t *SearchTool) searchFile(ctx context.Context, state *searchState, abs string, info os.FileInfo) error {
	if state.seen[abs] {
		return nil
	}
	state.seen[abs] = true
	if info.Size() > state.limits.MaxFileSize {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rel, err := t.resolver.Rel(abs)
	if err != nil {
		return err
	}

	lines, err := t.readLines(abs)
	if err != nil {
		if errors.Is(err, errSkipFile) || errors.Is(err, bufio.ErrTooLong) {
			return nil
		}
		return &ReadError{Path: rel, Cause: err}
	}

	for i, line := range lines {
		if !state.match(line) {
			continue
		}
		state.total++
		if len(state.matches) >= state.limit {
			continue
		}

		m := protocol.SearchMatch{
			Path:      rel,
			Line:      i + 1,
			MatchText: t.clip(line),
		}
		if state.context > 0 {
			for _, l := range lines[max(0, i-state.context):i] {
				m.ContextBefore = append(m.ContextBefore, t.clip(l))
			}
			for _, l := range lines[i+1 : min(len(lines), i+1+state.context)] {
				m.ContextAfter = append(m.ContextAfter, t.clip(l))
			}
		}
		state.matches = append(state.matches, m)
	}
	return nil
}

var errSkipFile = errors.New("skip file")

// readLines reads a text file line by line, returning errSkipFile for binary content.
func (t *SearchTool) readLines(abs string) ([]string, error) {
	f, err := t.fs.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, t.config.Tools.InitialScannerBufferSize)
	head, err := reader.Peek(min(t.config.Tools.InitialScannerBufferSize, 8000))
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	if content.IsBinaryContent(head) {
		return nil, errSkipFile
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, t.config.Tools.InitialScannerBufferSize), t.config.Tools.MaxScanTokenSize)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// clip shortens lines longer than the configured maximum, cutting on a rune
// boundary.
func (t *SearchTool) clip(line string) string {
	limit := t.config.Tools.MaxLineLength
	if len(line) <= limit {
		return line
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + truncatedSuffix
}
