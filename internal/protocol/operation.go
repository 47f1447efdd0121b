package protocol

import (
	"encoding/json"
)

// OperationType is the discriminator of a FileOperation.
type OperationType string

const (
	OpReplace      OperationType = "replace"
	OpInsert       OperationType = "insert"
	OpDelete       OperationType = "delete"
	OpRegexReplace OperationType = "regex_replace"
)

// FileOperation is one edit within a ModifyFile. Line numbers are 1-based and
// inclusive; each operation sees the result of the previous one.
type FileOperation interface {
	Type() OperationType
	isFileOperation()
}

// ReplaceLines replaces lines StartLine..EndLine with NewContent.
type ReplaceLines struct {
	StartLine  int    `json:"startLine" validate:"gte=1"`
	EndLine    int    `json:"endLine" validate:"gtefield=StartLine"`
	NewContent string `json:"newContent"`
}

// InsertLines inserts NewContent after AfterLine. AfterLine 0 inserts at the top.
type InsertLines struct {
	AfterLine  int    `json:"afterLine" validate:"gte=0"`
	NewContent string `json:"newContent"`
}

// DeleteLines removes lines StartLine..EndLine.
type DeleteLines struct {
	StartLine int `json:"startLine" validate:"gte=1"`
	EndLine   int `json:"endLine" validate:"gtefield=StartLine"`
}

// RegexReplace substitutes matches of Pattern. Flags may contain i, m, s and g.
type RegexReplace struct {
	Pattern     string  `json:"pattern" validate:"required"`
	Replacement string  `json:"replacement"`
	Flags       *string `json:"flags,omitempty"`
}

func (ReplaceLines) Type() OperationType { return OpReplace }
func (InsertLines) Type() OperationType  { return OpInsert }
func (DeleteLines) Type() OperationType  { return OpDelete }
func (RegexReplace) Type() OperationType { return OpRegexReplace }

func (ReplaceLines) isFileOperation() {}
func (InsertLines) isFileOperation()  {}
func (DeleteLines) isFileOperation()  {}
func (RegexReplace) isFileOperation() {}

// FileOperations is the ordered operation list of a ModifyFile.
type FileOperations []FileOperation

func (ops FileOperations) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(ops))
	for _, op := range ops {
		data, err := EncodeOperation(op)
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return json.Marshal(items)
}

func (ops *FileOperations) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if items == nil {
		*ops = nil
		return nil
	}
	out := make(FileOperations, 0, len(items))
	for _, item := range items {
		op, err := DecodeOperation(item)
		if err != nil {
			return err
		}
		out = append(out, op)
	}
	*ops = out
	return nil
}

// EncodeOperation encodes a FileOperation with its type tag.
func EncodeOperation(op FileOperation) ([]byte, error) {
	if op == nil {
		return nil, errNilVariant
	}
	return marshalTagged(string(op.Type()), op)
}

// DecodeOperation decodes a tagged FileOperation.
func DecodeOperation(data []byte) (FileOperation, error) {
	tag, err := peekType(data)
	if err != nil {
		return nil, err
	}

	var op FileOperation
	switch OperationType(tag) {
	case OpReplace:
		op, err = decodeAs[ReplaceLines](data)
	case OpInsert:
		op, err = decodeAs[InsertLines](data)
	case OpDelete:
		op, err = decodeAs[DeleteLines](data)
	case OpRegexReplace:
		op, err = decodeAs[RegexReplace](data)
	default:
		return nil, unknownType(data, "file operation", tag)
	}
	if err != nil {
		return nil, asDecodeError(data, err)
	}
	return op, nil
}
