package file

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/helper/content"
)

// ModifyFileTool applies line and regex edits to an existing file.
type ModifyFileTool struct {
	fileOps  fileEditor
	resolver pathResolver
}

// NewModifyFileTool creates a new ModifyFileTool with injected dependencies.
func NewModifyFileTool(fileOps fileEditor, resolver pathResolver) *ModifyFileTool {
	if fileOps == nil {
		panic("fileOps is required")
	}
	if resolver == nil {
		panic("resolver is required")
	}
	return &ModifyFileTool{fileOps: fileOps, resolver: resolver}
}

// Run applies the operations in order, each against the result of the
// previous one. Either every operation applies and the file is rewritten
// atomically, or nothing is written. Line endings are preserved.
func (t *ModifyFileTool) Run(ctx context.Context, cmd protocol.ModifyFile, limits sandbox.Limits) (*protocol.ModifyFileResponse, error) {
	abs, err := t.resolver.Abs(cmd.Path)
	if err != nil {
		return nil, err
	}
	rel, err := t.resolver.Rel(abs)
	if err != nil {
		return nil, err
	}

	info, err := statRegular(t.fileOps, abs, rel)
	if err != nil {
		return nil, err
	}
	if info.Size() > limits.MaxFileSize {
		return nil, &FileTooLargeError{Path: rel, Size: info.Size(), Limit: limits.MaxFileSize}
	}

	data, err := t.fileOps.ReadFile(abs, 0)
	if err != nil {
		return nil, &StatError{Path: rel, Cause: err}
	}
	if content.IsBinaryContent(data) {
		return nil, ErrBinaryFile
	}

	original := string(data)
	doc := content.ParseDocument(original)
	for i, op := range cmd.Operations {
		doc.Lines, err = applyOperation(doc.Lines, op)
		if err != nil {
			return nil, &OperationError{Index: i, Op: string(op.Type()), Cause: err}
		}
	}
	updated := doc.String()

	if size := int64(len(updated)); size > limits.MaxFileSize {
		return nil, &FileTooLargeError{Path: rel, Size: size, Limit: limits.MaxFileSize}
	}

	resp := &protocol.ModifyFileResponse{
		CommandID:         cmd.CommandID,
		Success:           true,
		Path:              rel,
		OperationsApplied: len(cmd.Operations),
	}
	if updated == original {
		return resp, nil
	}

	if err := t.fileOps.WriteFileAtomic(abs, []byte(updated), info.Mode().Perm()); err != nil {
		return nil, err
	}

	if diff := computeUnifiedDiff(original, updated, rel); diff != "" {
		resp.Diff = &diff
	}
	return resp, nil
}

func applyOperation(lines []string, op protocol.FileOperation) ([]string, error) {
	switch op := op.(type) {
	case protocol.ReplaceLines:
		if err := checkRange(op.StartLine, op.EndLine, len(lines)); err != nil {
			return nil, err
		}
		return splice(lines, op.StartLine-1, op.EndLine, operationLines(op.NewContent)), nil
	case protocol.InsertLines:
		if op.AfterLine < 0 || op.AfterLine > len(lines) {
			return nil, &LineRangeError{Start: op.AfterLine, End: op.AfterLine, Total: len(lines)}
		}
		return splice(lines, op.AfterLine, op.AfterLine, operationLines(op.NewContent)), nil
	case protocol.DeleteLines:
		if err := checkRange(op.StartLine, op.EndLine, len(lines)); err != nil {
			return nil, err
		}
		return splice(lines, op.StartLine-1, op.EndLine, nil), nil
	case protocol.RegexReplace:
		return regexReplace(lines, op)
	default:
		return nil, fmt.Errorf("unsupported operation %T", op)
	}
}

func checkRange(start, end, total int) error {
	if start < 1 || end < start || end > total {
		return &LineRangeError{Start: start, End: end, Total: total}
	}
	return nil
}

// splice replaces lines[from:to] with insert.
func splice(lines []string, from, to int, insert []string) []string {
	out := make([]string, 0, len(lines)-(to-from)+len(insert))
	out = append(out, lines[:from]...)
	out = append(out, insert...)
	return append(out, lines[to:]...)
}

// operationLines splits new content into lines. Empty content is one empty
// line, so replacing with "" blanks lines rather than deleting them.
func operationLines(s string) []string {
	if s == "" {
		return []string{""}
	}
	return content.SplitLines(s)
}

// regexReplace runs the pattern over the whole text so patterns may span
// lines. Without flags every match is replaced; with flags, only the first
// unless "g" is present.
func regexReplace(lines []string, op protocol.RegexReplace) ([]string, error) {
	prefix, global, err := parseFlags(op.Flags)
	if err != nil {
		return nil, &RegexError{Pattern: op.Pattern, Flags: *op.Flags, Cause: err}
	}
	re, err := regexp.Compile(prefix + op.Pattern)
	if err != nil {
		flags := ""
		if op.Flags != nil {
			flags = *op.Flags
		}
		return nil, &RegexError{Pattern: op.Pattern, Flags: flags, Cause: err}
	}

	text := strings.Join(lines, "\n")
	var result string
	if global {
		result = re.ReplaceAllString(text, op.Replacement)
	} else {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			return lines, nil
		}
		expanded := re.ExpandString(nil, op.Replacement, text, loc)
		result = text[:loc[0]] + string(expanded) + text[loc[1]:]
	}

	if result == "" && len(lines) == 0 {
		return lines, nil
	}
	return strings.Split(result, "\n"), nil
}

func parseFlags(flags *string) (prefix string, global bool, err error) {
	if flags == nil {
		return "", true, nil
	}
	var inline strings.Builder
	for _, f := range *flags {
		switch f {
		case 'g':
			global = true
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		default:
			return "", false, fmt.Errorf("unknown flag %q", f)
		}
	}
	if inline.Len() > 0 {
		prefix = "(?" + inline.String() + ")"
	}
	return prefix, global, nil
}

// computeUnifiedDiff renders a unified diff with three lines of context.
func computeUnifiedDiff(oldContent, newContent, filename string) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: "a/" + filename,
		ToFile:   "b/" + filename,
		Context:  3,
	}
	diff, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return diff
}
