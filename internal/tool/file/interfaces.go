package file

import (
	"fmt"
	"os"
)

// pathResolver keeps command paths inside the workspace.
type pathResolver interface {
	Abs(path string) (string, error)
	Rel(path string) (string, error)
}

// fileReader defines the filesystem operations needed for reading files.
type fileReader interface {
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string, limit int64) ([]byte, error)
}

// fileWriter defines the filesystem operations needed for writing files.
type fileWriter interface {
	Stat(path string) (os.FileInfo, error)
	WriteFileAtomic(path string, content []byte, perm os.FileMode) error
	AppendFile(path string, content []byte, perm os.FileMode) error
	EnsureDirs(path string) error
}

// fileEditor defines the filesystem operations needed for modifying files.
type fileEditor interface {
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string, limit int64) ([]byte, error)
	WriteFileAtomic(path string, content []byte, perm os.FileMode) error
}

// statRegular stats abs and requires a regular file.
func statRegular(fs interface {
	Stat(path string) (os.FileInfo, error)
}, abs, rel string) (os.FileInfo, error) {
	info, err := fs.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FileMissingError{Path: rel}
		}
		return nil, &StatError{Path: rel, Cause: err}
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, rel)
	}
	return info, nil
}
