// Package directory lists workspace directories for explore_files.
package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/paginationutil"
	"github.com/vim89/llm4s-sub012/internal/tool/service/git"
)

// ExploreTool handles directory listing operations.
type ExploreTool struct {
	fs       dirLister
	resolver pathResolver
}

// NewExploreTool creates a new ExploreTool with injected dependencies.
func NewExploreTool(fs dirLister, resolver pathResolver) *ExploreTool {
	if fs == nil {
		panic("fs is required")
	}
	if resolver == nil {
		panic("resolver is required")
	}
	return &ExploreTool{fs: fs, resolver: resolver}
}

// walkState is shared across one explore call.
type walkState struct {
	root     string
	maxDepth int // -1 = unlimited
	meta     bool
	excludes *git.PatternMatcher
	visited  map[string]bool
	entries  []protocol.FileEntry
}

// Run lists the directory named by cmd.Path. Without recursion only the
// immediate children are returned; with recursion maxDepth bounds how many
// levels below the immediate children are visited (nil = unlimited).
// Entries are workspace-relative, directories first, then by path. When more
// than maxDirectoryEntries are found the list is cut and isTruncated is set.
func (t *ExploreTool) Run(ctx context.Context, cmd protocol.ExploreFiles, limits sandbox.Limits) (*protocol.ExploreFilesResponse, error) {
	abs, err := t.resolver.Abs(cmd.Path)
	if err != nil {
		return nil, err
	}
	rel, err := t.resolver.Rel(abs)
	if err != nil {
		return nil, err
	}

	info, err := t.fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DirMissingError{Path: rel}
		}
		return nil, &ListDirError{Path: rel, Cause: err}
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, rel)
	}

	state := &walkState{
		root:     abs,
		maxDepth: 0,
		meta:     cmd.ReturnMetadata != nil && *cmd.ReturnMetadata,
		excludes: git.NewPatternMatcher(cmd.ExcludePatterns),
		visited:  make(map[string]bool),
	}
	if cmd.Recursive != nil && *cmd.Recursive {
		state.maxDepth = -1
		if cmd.MaxDepth != nil {
			state.maxDepth = *cmd.MaxDepth
		}
	}

	if err := t.walk(ctx, state, abs, 0); err != nil {
		return nil, err
	}

	sortEntries(state.entries)
	entries, page := paginationutil.ApplyPagination(state.entries, 0, limits.MaxDirectoryEntries)

	return &protocol.ExploreFilesResponse{
		CommandID:   cmd.CommandID,
		Entries:     entries,
		IsTruncated: page.Truncated,
		TotalFound:  page.TotalCount,
	}, nil
}

// walk lists dir and recurses into subdirectories while depth allows.
// depth 0 is the explored directory's immediate children.
func (t *ExploreTool) walk(ctx context.Context, state *walkState, dir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Detect symlink loops using canonical path
	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		canonical = dir
	}
	if state.visited[canonical] {
		return nil
	}
	state.visited[canonical] = true

	infos, err := t.fs.ListDir(dir)
	if err != nil {
		return &ListDirError{Path: dir, Cause: err}
	}

	for _, info := range infos {
		entryAbs := filepath.Join(dir, info.Name())
		isDir := info.IsDir()
		followable := isDir
		if info.Mode()&os.ModeSymlink != 0 {
			// Symlinks count as directories only when they stay inside the workspace
			if _, err := t.resolver.Abs(entryAbs); err == nil {
				if target, err := t.fs.Stat(entryAbs); err == nil && target.IsDir() {
					isDir, followable = true, true
				}
			}
		}

		within, err := filepath.Rel(state.root, entryAbs)
		if err != nil {
			return fmt.Errorf("failed to calculate relative path for entry %s: %w", info.Name(), err)
		}
		if state.excludes.Excluded(within, isDir) {
			continue
		}

		entryRel, err := t.resolver.Rel(entryAbs)
		if err != nil {
			// Dangling or escaping symlinks are listed by their lexical path
			entryRel = filepath.ToSlash(within)
			if rootRel, relErr := t.resolver.Rel(state.root); relErr == nil && rootRel != "." {
				entryRel = rootRel + "/" + entryRel
			}
		}

		entry := protocol.FileEntry{Path: entryRel, IsDirectory: isDir}
		if state.meta {
			size := info.Size()
			modified := info.ModTime().UnixMilli()
			perms := info.Mode().Perm().String()
			entry.Size, entry.LastModified, entry.Permissions = &size, &modified, &perms
		}
		state.entries = append(state.entries, entry)

		if followable && (state.maxDepth < 0 || depth < state.maxDepth) {
			if err := t.walk(ctx, state, entryAbs, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortEntries orders directories before files, both alphabetically by path.
func sortEntries(entries []protocol.FileEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return entries[i].Path < entries[j].Path
	})
}
