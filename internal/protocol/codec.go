package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// marshalTagged encodes v and prepends the "type" discriminator.
func marshalTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("protocol: %s did not encode as a JSON object", tag)
	}
	tagJSON, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tagJSON) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(tagJSON)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func peekType(data []byte) (string, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", &DecodeError{Raw: data, Reason: "malformed json: " + err.Error()}
	}
	if head.Type == nil || *head.Type == "" {
		return "", &DecodeError{Raw: data, Reason: `missing "type" discriminator`}
	}
	return *head.Type, nil
}

func decodeAs[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	if err := validate.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}

// EncodeCommand encodes a Command with its type tag.
func EncodeCommand(c Command) ([]byte, error) {
	if c == nil {
		return nil, errNilVariant
	}
	return marshalTagged(string(c.Type()), c)
}

// DecodeCommand decodes a tagged Command. Any failure is a *DecodeError.
func DecodeCommand(data []byte) (Command, error) {
	tag, err := peekType(data)
	if err != nil {
		return nil, err
	}

	var cmd Command
	switch CommandType(tag) {
	case TypeExploreFiles:
		cmd, err = decodeAs[ExploreFiles](data)
	case TypeReadFile:
		cmd, err = decodeAs[ReadFile](data)
	case TypeWriteFile:
		cmd, err = decodeAs[WriteFile](data)
	case TypeModifyFile:
		cmd, err = decodeAs[ModifyFile](data)
	case TypeSearchFiles:
		cmd, err = decodeAs[SearchFiles](data)
	case TypeExecuteCommand:
		cmd, err = decodeAs[ExecuteCommand](data)
	case TypeGetWorkspaceInfo:
		cmd, err = decodeAs[GetWorkspaceInfo](data)
	default:
		return nil, unknownType(data, "command", tag)
	}
	if err != nil {
		return nil, asDecodeError(data, err)
	}
	return cmd, nil
}

// EncodeResponse encodes a Response with its type tag.
func EncodeResponse(r Response) ([]byte, error) {
	if r == nil {
		return nil, errNilVariant
	}
	return marshalTagged(string(r.Type()), r)
}

// DecodeResponse decodes a tagged Response. Any failure is a *DecodeError.
func DecodeResponse(data []byte) (Response, error) {
	tag, err := peekType(data)
	if err != nil {
		return nil, err
	}

	var resp Response
	switch ResponseType(tag) {
	case TypeExploreFilesResponse:
		resp, err = decodeAs[ExploreFilesResponse](data)
	case TypeReadFileResponse:
		resp, err = decodeAs[ReadFileResponse](data)
	case TypeWriteFileResponse:
		resp, err = decodeAs[WriteFileResponse](data)
	case TypeModifyFileResponse:
		resp, err = decodeAs[ModifyFileResponse](data)
	case TypeSearchFilesResponse:
		resp, err = decodeAs[SearchFilesResponse](data)
	case TypeExecuteCommandResponse:
		resp, err = decodeAs[ExecuteCommandResponse](data)
	case TypeGetWorkspaceInfoResponse:
		resp, err = decodeAs[GetWorkspaceInfoResponse](data)
	case TypeErrorResponse:
		resp, err = decodeAs[ErrorResponse](data)
	default:
		return nil, unknownType(data, "response", tag)
	}
	if err != nil {
		return nil, asDecodeError(data, err)
	}
	return resp, nil
}

type commandEnvelope struct {
	Command json.RawMessage `json:"command"`
}

type responseEnvelope struct {
	Response json.RawMessage `json:"response"`
}

// EncodeMessage encodes an envelope, nesting the tagged Command or Response
// for command and response frames.
func EncodeMessage(m Message) ([]byte, error) {
	switch m := m.(type) {
	case nil:
		return nil, errNilVariant
	case CommandMessage:
		return encodeCommandEnvelope(m)
	case *CommandMessage:
		return encodeCommandEnvelope(*m)
	case ResponseMessage:
		return encodeResponseEnvelope(m)
	case *ResponseMessage:
		return encodeResponseEnvelope(*m)
	default:
		return marshalTagged(string(m.Type()), m)
	}
}

func encodeCommandEnvelope(m CommandMessage) ([]byte, error) {
	inner, err := EncodeCommand(m.Command)
	if err != nil {
		return nil, err
	}
	return marshalTagged(string(MsgCommand), commandEnvelope{Command: inner})
}

func encodeResponseEnvelope(m ResponseMessage) ([]byte, error) {
	inner, err := EncodeResponse(m.Response)
	if err != nil {
		return nil, err
	}
	return marshalTagged(string(MsgResponse), responseEnvelope{Response: inner})
}

// DecodeMessage decodes one wire frame. Any failure is a *DecodeError whose
// Raw is the whole frame.
func DecodeMessage(data []byte) (Message, error) {
	tag, err := peekType(data)
	if err != nil {
		return nil, err
	}

	var msg Message
	switch MessageType(tag) {
	case MsgCommand:
		var env commandEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, asDecodeError(data, err)
		}
		if isAbsent(env.Command) {
			return nil, &DecodeError{Raw: data, Reason: `missing required field "command"`}
		}
		cmd, err := DecodeCommand(env.Command)
		if err != nil {
			return nil, asDecodeError(data, err)
		}
		return CommandMessage{Command: cmd}, nil
	case MsgResponse:
		var env responseEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, asDecodeError(data, err)
		}
		if isAbsent(env.Response) {
			return nil, &DecodeError{Raw: data, Reason: `missing required field "response"`}
		}
		resp, err := DecodeResponse(env.Response)
		if err != nil {
			return nil, asDecodeError(data, err)
		}
		return ResponseMessage{Response: resp}, nil
	case MsgHeartbeat:
		msg, err = decodeAs[Heartbeat](data)
	case MsgHeartbeatResponse:
		msg, err = decodeAs[HeartbeatResponse](data)
	case MsgStreamingOutput:
		msg, err = decodeAs[StreamingOutput](data)
	case MsgCommandStarted:
		msg, err = decodeAs[CommandStarted](data)
	case MsgCommandCompleted:
		msg, err = decodeAs[CommandCompleted](data)
	case MsgError:
		msg, err = decodeAs[ErrorMessage](data)
	default:
		return nil, unknownType(data, "message", tag)
	}
	if err != nil {
		return nil, asDecodeError(data, err)
	}
	return msg, nil
}

// PeekCommandID extracts command.commandId from a frame that failed to
// decode, so the runner can still answer the command. It returns "" when the
// id is not recoverable.
func PeekCommandID(data []byte) string {
	var probe struct {
		Command struct {
			CommandID string `json:"commandId"`
		} `json:"command"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.Command.CommandID
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
