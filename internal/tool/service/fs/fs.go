// Package fs implements the filesystem primitives the workspace tools build on.
package fs

import (
	"io"
	"os"
	"path/filepath"
)

// OSFileSystem implements filesystem operations on the local disk.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OSFileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// Stat returns file info for a path (follows symlinks).
func (fs *OSFileSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Lstat returns file info for a path without following symlinks.
func (fs *OSFileSystem) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

// Open opens path for streaming reads.
func (fs *OSFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// ReadFile reads at most limit bytes of path. A limit <= 0 reads everything.
func (fs *OSFileSystem) ReadFile(path string, limit int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if limit <= 0 {
		return io.ReadAll(file)
	}
	return io.ReadAll(io.LimitReader(file, limit))
}

// WriteFileAtomic replaces path with content by writing a sibling temp file
// and renaming it over the target, so readers never observe a partial file.
func (fs *OSFileSystem) WriteFileAtomic(path string, content []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(filepath.Dir(path), content)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &OpError{Op: "rename", Path: path, Cause: err}
	}
	if err := os.Chmod(path, perm); err != nil {
		return &OpError{Op: "chmod", Path: path, Cause: err}
	}
	return nil
}

// writeTemp stores content in a new hidden file inside dir and returns its
// path. The file is removed again on any failure.
func writeTemp(dir string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".workspace-*")
	if err != nil {
		return "", &OpError{Op: "create-temp", Path: dir, Cause: err}
	}
	name := f.Name()

	op := ""
	if _, err = f.Write(content); err != nil {
		op = "write-temp"
	} else if err = f.Sync(); err != nil {
		op = "sync-temp"
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		op, err = "close-temp", closeErr
	}
	if err != nil {
		_ = os.Remove(name)
		return "", &OpError{Op: op, Path: name, Cause: err}
	}
	return name, nil
}

// AppendFile appends content to path, creating it with perm if missing.
func (fs *OSFileSystem) AppendFile(path string, content []byte, perm os.FileMode) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return &OpError{Op: "append", Path: path, Cause: err}
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = &OpError{Op: "append", Path: path, Cause: closeErr}
		}
	}()
	if _, err := f.Write(content); err != nil {
		return &OpError{Op: "append", Path: path, Cause: err}
	}
	return nil
}

// EnsureDirs creates a directory and its parents if they don't exist.
func (fs *OSFileSystem) EnsureDirs(path string) error {
	return os.MkdirAll(path, 0o755)
}

// ListDir lists the contents of a directory in name order.
func (fs *OSFileSystem) ListDir(path string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // removed between ReadDir and Info
			}
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, nil
}
