package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxRawInError bounds how much of a bad payload is echoed in Error().
const maxRawInError = 256

var errNilVariant = errors.New("protocol: cannot encode nil variant")

// DecodeError is returned for any payload that does not decode into a complete
// variant. Raw holds the full payload for diagnostics.
type DecodeError struct {
	Raw    []byte
	Reason string
}

func (e *DecodeError) Error() string {
	raw := string(e.Raw)
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError] + "..."
	}
	return fmt.Sprintf("decode failed: %s (payload: %s)", e.Reason, raw)
}

func unknownType(data []byte, union, tag string) *DecodeError {
	return &DecodeError{Raw: data, Reason: fmt.Sprintf("unknown %s type %q", union, tag)}
}

// asDecodeError wraps err as a DecodeError carrying data. Reasons from nested
// decode errors are kept but the outer payload replaces theirs.
func asDecodeError(data []byte, err error) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		return &DecodeError{Raw: data, Reason: de.Reason}
	}
	return &DecodeError{Raw: data, Reason: describe(err)}
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			parts = append(parts, fmt.Sprintf("missing required field %q", fe.Field()))
			continue
		}
		parts = append(parts, fmt.Sprintf("field %q fails %s", fe.Field(), strings.TrimSpace(fe.Tag()+" "+fe.Param())))
	}
	return strings.Join(parts, "; ")
}
