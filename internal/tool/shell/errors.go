package shell

import "fmt"

// WorkingDirError is returned when the working directory is missing or not a directory.
type WorkingDirError struct {
	Path  string
	Cause error
}

func (e *WorkingDirError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid working directory %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("working directory is not a directory: %s", e.Path)
}
func (e *WorkingDirError) Unwrap() error     { return e.Cause }
func (e *WorkingDirError) FileMissing() bool { return e.Cause != nil }
