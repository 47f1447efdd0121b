// Package path keeps every path a command names inside the workspace root.
package path

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves command paths against a workspace root.
type Resolver struct {
	workspaceRoot string
}

// NewResolver creates a resolver for a canonical workspace root.
func NewResolver(workspaceRoot string) *Resolver {
	return &Resolver{
		workspaceRoot: workspaceRoot,
	}
}

// Root returns the workspace root.
func (r *Resolver) Root() string {
	return r.workspaceRoot
}

// CanonicaliseRoot makes root absolute and resolves symlinks.
// Returns an error if the path doesn't exist or isn't a directory.
func CanonicaliseRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", &WorkspaceRootError{Root: root, Cause: err}
	}

	resolved, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", &WorkspaceRootError{Root: absRoot, Cause: err}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", &WorkspaceRootError{Root: resolved, Cause: err}
	}
	if !info.IsDir() {
		return "", &WorkspaceRootError{Root: resolved, Cause: fmt.Errorf("%w: %s", ErrNotADirectory, resolved)}
	}
	return resolved, nil
}

// Abs resolves path to an absolute path inside the workspace. Relative paths
// are taken from the root. Symlinks in the existing part of the path must not
// lead outside the root either.
func (r *Resolver) Abs(path string) (string, error) {
	if r.workspaceRoot == "" {
		return "", ErrWorkspaceRootNotSet
	}

	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Clean(filepath.Join(r.workspaceRoot, path))
	}

	if !r.within(abs) {
		return "", &OutsideWorkspaceError{Path: path}
	}

	real, err := evalExisting(abs)
	if err != nil {
		return "", &OutsideWorkspaceError{Path: path, Cause: err}
	}
	if !r.within(real) {
		return "", &OutsideWorkspaceError{Path: path, Target: real}
	}

	return abs, nil
}

// Rel resolves path relative to the workspace root, using "." for the root.
func (r *Resolver) Rel(path string) (string, error) {
	abs, err := r.Abs(path)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(r.workspaceRoot, abs)
	if err != nil {
		return "", &OutsideWorkspaceError{Path: path, Cause: err}
	}

	return filepath.ToSlash(rel), nil
}

func (r *Resolver) within(abs string) bool {
	return abs == r.workspaceRoot || strings.HasPrefix(abs, r.workspaceRoot+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of abs and
// re-attaches the part that does not exist yet.
func evalExisting(abs string) (string, error) {
	var missing []string
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
