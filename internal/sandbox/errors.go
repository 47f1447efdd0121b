package sandbox

import "fmt"

// ValidationError names the first limit that is not strictly positive.
type ValidationError struct {
	Field string
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid sandbox config: %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("invalid sandbox config: %s must be > 0", e.Field)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// UnknownProfileError is returned for a profile name that maps to no preset.
type UnknownProfileError struct {
	Name string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown sandbox profile %q (want permissive or locked)", e.Name)
}
