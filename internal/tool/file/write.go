package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
)

const defaultFilePerm os.FileMode = 0o644

// WriteFileTool handles file writing operations.
type WriteFileTool struct {
	fileOps  fileWriter
	resolver pathResolver
}

// NewWriteFileTool creates a new WriteFileTool with injected dependencies.
func NewWriteFileTool(fileOps fileWriter, resolver pathResolver) *WriteFileTool {
	if fileOps == nil {
		panic("fileOps is required")
	}
	if resolver == nil {
		panic("resolver is required")
	}
	return &WriteFileTool{fileOps: fileOps, resolver: resolver}
}

// Run writes content according to the command's mode:
//   - create fails if the file exists
//   - overwrite (the default) replaces the file atomically
//   - append adds to the end, creating the file if needed
//
// Missing parent directories are only created when createDirectories is set.
// Existing files keep their permissions.
func (t *WriteFileTool) Run(ctx context.Context, cmd protocol.WriteFile, limits sandbox.Limits) (*protocol.WriteFileResponse, error) {
	abs, err := t.resolver.Abs(cmd.Path)
	if err != nil {
		return nil, err
	}
	rel, err := t.resolver.Rel(abs)
	if err != nil {
		return nil, err
	}

	payload := []byte(cmd.Content)
	mode := cmd.EffectiveMode()

	info, err := t.fileOps.Stat(abs)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return nil, &StatError{Path: rel, Cause: err}
	}
	if exists && info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, rel)
	}

	finalSize := int64(len(payload))
	if exists && mode == protocol.WriteModeAppend {
		finalSize += info.Size()
	}
	if finalSize > limits.MaxFileSize {
		return nil, &FileTooLargeError{Path: rel, Size: finalSize, Limit: limits.MaxFileSize}
	}

	if exists && mode == protocol.WriteModeCreate {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, rel)
	}

	perm := defaultFilePerm
	if exists {
		perm = info.Mode().Perm()
	} else if err := t.ensureParent(abs, cmd.CreateDirectories != nil && *cmd.CreateDirectories); err != nil {
		return nil, err
	}

	if mode == protocol.WriteModeAppend {
		err = t.fileOps.AppendFile(abs, payload, perm)
	} else {
		err = t.fileOps.WriteFileAtomic(abs, payload, perm)
	}
	if err != nil {
		return nil, err
	}

	return &protocol.WriteFileResponse{
		CommandID:    cmd.CommandID,
		Success:      true,
		Path:         rel,
		BytesWritten: int64(len(payload)),
	}, nil
}

func (t *WriteFileTool) ensureParent(abs string, create bool) error {
	parent := filepath.Dir(abs)
	info, err := t.fileOps.Stat(parent)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("parent is not a directory: %s", parent)
	case !os.IsNotExist(err):
		return &StatError{Path: parent, Cause: err}
	}

	rel, relErr := t.resolver.Rel(parent)
	if relErr != nil {
		rel = parent
	}
	if !create {
		return &ParentMissingError{Path: rel}
	}
	return t.fileOps.EnsureDirs(parent)
}
