package path

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbs(t *testing.T) {
	root := canonicalTempDir(t)
	resolver := NewResolver(root)

	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{"relative path within workspace", "src/main.go", filepath.Join(root, "src/main.go"), nil},
		{"absolute path within workspace", filepath.Join(root, "src/main.go"), filepath.Join(root, "src/main.go"), nil},
		{"path with dots within workspace", "src/../src/main.go", filepath.Join(root, "src/main.go"), nil},
		{"workspace root", ".", root, nil},
		{"absolute workspace root", root, root, nil},
		{"escape attempt via parent dots", "../../../etc/passwd", "", ErrOutsideWorkspace},
		{"absolute path outside workspace", "/etc/passwd", "", ErrOutsideWorkspace},
		{"prefix match but not child", root + "foo/bar", "", ErrOutsideWorkspace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, err := resolver.Abs(tt.input)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, abs)
		})
	}
}

func TestAbs_SymlinkEscape(t *testing.T) {
	root := canonicalTempDir(t)
	outside := canonicalTempDir(t)
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))
	resolver := NewResolver(root)

	_, err := resolver.Abs("escape/secret.txt")
	var outErr *OutsideWorkspaceError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, filepath.Join(outside, "secret.txt"), outErr.Target)
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	// Symlinks that stay inside are fine, even for paths that don't exist yet
	abs, err := resolver.Abs("alias/new/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alias/new/file.txt"), abs)
}

func TestAbs_RootNotSet(t *testing.T) {
	_, err := NewResolver("").Abs("x")
	assert.ErrorIs(t, err, ErrWorkspaceRootNotSet)
}

func TestRel(t *testing.T) {
	root := canonicalTempDir(t)
	resolver := NewResolver(root)

	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{"relative path within workspace", "src/main.go", "src/main.go", nil},
		{"absolute path within workspace", filepath.Join(root, "src/main.go"), "src/main.go", nil},
		{"workspace root", root, ".", nil},
		{"escape attempt", "/etc/passwd", "", ErrOutsideWorkspace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, err := resolver.Rel(tt.input)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rel)
		})
	}
}

func TestCanonicaliseRoot(t *testing.T) {
	root := canonicalTempDir(t)

	t.Run("valid directory", func(t *testing.T) {
		got, err := CanonicaliseRoot(root)
		require.NoError(t, err)
		assert.Equal(t, root, got)
	})

	t.Run("non-existent path", func(t *testing.T) {
		_, err := CanonicaliseRoot(filepath.Join(root, "non-existent"))
		var rootErr *WorkspaceRootError
		assert.ErrorAs(t, err, &rootErr)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		file := filepath.Join(root, "file.txt")
		require.NoError(t, os.WriteFile(file, []byte("test"), 0o644))

		_, err := CanonicaliseRoot(file)
		assert.ErrorIs(t, err, ErrNotADirectory)
	})
}

func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}
