package path

import (
	"errors"
	"fmt"
)

// -- Error Types --

// WorkspaceRootError is returned when the workspace root is invalid.
type WorkspaceRootError struct {
	Root  string
	Cause error
}

func (e *WorkspaceRootError) Error() string {
	return fmt.Sprintf("invalid workspace root %s: %v", e.Root, e.Cause)
}
func (e *WorkspaceRootError) Unwrap() error { return e.Cause }

// OutsideWorkspaceError is returned for a path that escapes the root, either
// lexically or through a symlink (Target is then the resolved location).
type OutsideWorkspaceError struct {
	Path   string
	Target string
	Cause  error
}

func (e *OutsideWorkspaceError) Error() string {
	switch {
	case e.Target != "":
		return fmt.Sprintf("path %s resolves to %s outside the workspace root", e.Path, e.Target)
	case e.Cause != nil:
		return fmt.Sprintf("path %s cannot be resolved: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("path %s is outside the workspace root", e.Path)
}
func (e *OutsideWorkspaceError) Is(target error) bool { return target == ErrOutsideWorkspace }
func (e *OutsideWorkspaceError) Unwrap() error        { return e.Cause }

// -- Sentinels --

var (
	ErrOutsideWorkspace    = errors.New("path is outside workspace root")
	ErrWorkspaceRootNotSet = errors.New("workspace root not set")
	ErrNotADirectory       = errors.New("not a directory")
)
