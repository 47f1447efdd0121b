package directory

import (
	"errors"
	"fmt"
)

// -- Sentinels --

var (
	ErrNotADirectory = errors.New("not a directory")
)

// -- Error Types --

// DirMissingError is returned when the directory to explore does not exist.
type DirMissingError struct {
	Path string
}

func (e *DirMissingError) Error() string {
	return fmt.Sprintf("directory not found: %s", e.Path)
}
func (e *DirMissingError) FileMissing() bool { return true }

// ListDirError wraps a failure to read a directory during the walk.
type ListDirError struct {
	Path  string
	Cause error
}

func (e *ListDirError) Error() string {
	return fmt.Sprintf("failed to list directory %s: %v", e.Path, e.Cause)
}
func (e *ListDirError) Unwrap() error { return e.Cause }
func (e *ListDirError) IOError() bool { return true }
