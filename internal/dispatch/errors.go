package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vim89/llm4s-sub012/internal/protocol"
)

// DispatchError is a command failure that maps onto an ErrorResponse.
type DispatchError struct {
	Code    protocol.ErrorCode
	Message string
	Details *string
	Cause   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
func (e *DispatchError) Unwrap() error { return e.Cause }

// Response converts the error into the ErrorResponse for commandID.
func (e *DispatchError) Response(commandID string) protocol.ErrorResponse {
	return protocol.ErrorResponse{
		CommandID: commandID,
		Message:   e.Message,
		Code:      e.Code,
		Details:   e.Details,
	}
}

// fromError classifies a capability error. Errors reporting Timeout() are
// COMMAND_TIMEOUT; everything else is EXECUTION_FAILED.
func fromError(err error) *DispatchError {
	code := protocol.CodeExecutionFailed
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		code = protocol.CodeCommandTimeout
	}
	de := &DispatchError{Code: code, Message: err.Error(), Cause: err}
	if chain := errorChain(err); chain != "" {
		de.Details = &chain
	}
	return de
}

// errorChain renders each wrapped error with its type, outermost first.
// Single-link chains have no details beyond the message.
func errorChain(err error) string {
	var links []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		links = append(links, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	if len(links) < 2 {
		return ""
	}
	return strings.Join(links, "\ncaused by ")
}
