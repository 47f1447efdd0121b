package fs

import "fmt"

// OpError reports which step of a workspace write failed.
type OpError struct {
	Op    string // create-temp, write-temp, sync-temp, close-temp, rename, chmod, append
	Path  string
	Cause error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *OpError) Unwrap() error { return e.Cause }

// IOError marks the failure as an I/O problem rather than a bad request.
func (e *OpError) IOError() bool { return true }
