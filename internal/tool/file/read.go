package file

import (
	"context"
	"strings"

	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/helper/content"
)

// ReadFileTool handles file reading operations.
type ReadFileTool struct {
	fileOps  fileReader
	resolver pathResolver
}

// NewReadFileTool creates a new ReadFileTool with injected dependencies.
func NewReadFileTool(fileOps fileReader, resolver pathResolver) *ReadFileTool {
	if fileOps == nil {
		panic("fileOps is required")
	}
	if resolver == nil {
		panic("resolver is required")
	}
	return &ReadFileTool{fileOps: fileOps, resolver: resolver}
}

// Run reads a text file, optionally limited to an inclusive 1-based line
// range. An end line past EOF is clamped; a start line past EOF is an error.
// A full read returns the file byte for byte.
//
// Note: ctx is accepted for API consistency but not used - file I/O is synchronous.
func (t *ReadFileTool) Run(ctx context.Context, cmd protocol.ReadFile, limits sandbox.Limits) (*protocol.ReadFileResponse, error) {
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

	data, err := t.fileOps.ReadFile(abs, limits.MaxFileSize)
	if err != nil {
		return nil, &StatError{Path: rel, Cause: err}
	}
	if content.IsBinaryContent(data) {
		return nil, ErrBinaryFile
	}

	text := string(data)
	lines := content.SplitLines(text)
	total := len(lines)

	resp := &protocol.ReadFileResponse{
		CommandID: cmd.CommandID,
		Metadata: protocol.FileMetadata{
			Path:         rel,
			Size:         info.Size(),
			LastModified: info.ModTime().UnixMilli(),
			Permissions:  info.Mode().Perm().String(),
		},
		TotalLines: total,
	}

	if cmd.StartLine == nil && cmd.EndLine == nil {
		resp.Content = text
		if total > 0 {
			resp.StartLine, resp.EndLine = 1, total
		}
		return resp, nil
	}

	start, end := 1, total
	if cmd.StartLine != nil {
		start = *cmd.StartLine
	}
	if cmd.EndLine != nil {
		end = min(*cmd.EndLine, total)
	}
	if cmd.EndLine != nil && *cmd.EndLine < start {
		return nil, &LineRangeError{Start: start, End: *cmd.EndLine, Total: total}
	}
	if start > total {
		if total == 0 && start == 1 {
			return resp, nil
		}
		return nil, &LineRangeError{Start: start, End: end, Total: total}
	}

	resp.Content = strings.Join(lines[start-1:end], "\n")
	resp.StartLine, resp.EndLine = start, end
	return resp, nil
}
