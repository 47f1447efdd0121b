package file

import (
	"errors"
	"fmt"
)

// -- Sentinels --

var (
	ErrFileExists   = errors.New("file already exists")
	ErrBinaryFile   = errors.New("file is binary")
	ErrIsDirectory  = errors.New("path is a directory")
	ErrInvalidRange = errors.New("invalid line range")
)

// -- Error Types --

// FileMissingError is returned when the target file does not exist.
type FileMissingError struct {
	Path string
}

func (e *FileMissingError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}
func (e *FileMissingError) FileMissing() bool { return true }

// ParentMissingError is returned when writing into a directory that does not
// exist and createDirectories was not requested.
type ParentMissingError struct {
	Path string
}

func (e *ParentMissingError) Error() string {
	return fmt.Sprintf("parent directory does not exist: %s (set createDirectories to create it)", e.Path)
}
func (e *ParentMissingError) FileMissing() bool { return true }

// FileTooLargeError is returned when a file, or what would be written, exceeds maxFileSize.
type FileTooLargeError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %s is %d bytes, exceeding the %d byte limit", e.Path, e.Size, e.Limit)
}

// StatError is returned when stat fails for a reason other than absence.
type StatError struct {
	Path  string
	Cause error
}

func (e *StatError) Error() string {
	return fmt.Sprintf("failed to stat %s: %v", e.Path, e.Cause)
}
func (e *StatError) Unwrap() error { return e.Cause }
func (e *StatError) IOError() bool { return true }

// LineRangeError is returned for a line range outside the file.
type LineRangeError struct {
	Start int
	End   int
	Total int
}

func (e *LineRangeError) Error() string {
	return fmt.Sprintf("%v: lines %d-%d of a %d line file", ErrInvalidRange, e.Start, e.End, e.Total)
}
func (e *LineRangeError) Unwrap() error { return ErrInvalidRange }

// OperationError wraps the failure of one ModifyFile operation.
type OperationError struct {
	Index int
	Op    string
	Cause error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d (%s) failed: %v", e.Index+1, e.Op, e.Cause)
}
func (e *OperationError) Unwrap() error { return e.Cause }

// RegexError is returned when a regex_replace pattern or its flags are invalid.
type RegexError struct {
	Pattern string
	Flags   string
	Cause   error
}

func (e *RegexError) Error() string {
	return fmt.Sprintf("invalid regex %q (flags %q): %v", e.Pattern, e.Flags, e.Cause)
}
func (e *RegexError) Unwrap() error { return e.Cause }
