package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/vim89/llm4s-sub012/internal/protocol"
)

// -- Sentinels --

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTimeout          = errors.New("timed out waiting for response")
	ErrDuplicateCommand = errors.New("command id already in flight")
)

// -- Error Types --

// CommandTimeoutError is returned when no response arrives in time. The
// runner is not told; it finishes the command on its own.
type CommandTimeoutError struct {
	CommandID string
	After     time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %s: no response after %s", e.CommandID, e.After)
}
func (e *CommandTimeoutError) Is(target error) bool { return target == ErrTimeout }
func (e *CommandTimeoutError) Timeout() bool        { return true }

// UnexpectedResponseError is returned by the typed helpers when the runner
// answers with a different response variant.
type UnexpectedResponseError struct {
	CommandID string
	Got       protocol.ResponseType
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("command %s: unexpected response type %s", e.CommandID, e.Got)
}
