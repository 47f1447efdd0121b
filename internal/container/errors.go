package container

import (
	"errors"
	"fmt"
)

// ErrNotReady means the readiness probe never succeeded.
var ErrNotReady = errors.New("container did not become ready")

// RuntimeUnavailableError means the container runtime daemon did not answer.
type RuntimeUnavailableError struct {
	Binary string
	Cause  error
}

func (e *RuntimeUnavailableError) Error() string {
	return fmt.Sprintf("%s is not available: %v", e.Binary, e.Cause)
}

func (e *RuntimeUnavailableError) Unwrap() error { return e.Cause }

// ProbeStatusError is a readiness probe answered with a non-200 status.
type ProbeStatusError struct {
	URL    string
	Status int
}

func (e *ProbeStatusError) Error() string {
	return fmt.Sprintf("probe %s: status %d", e.URL, e.Status)
}
