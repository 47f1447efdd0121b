package shell

import (
	"context"
	"os"

	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
)

// pathResolver defines workspace path resolution operations.
type pathResolver interface {
	Abs(path string) (string, error)
	Rel(path string) (string, error)
}

// dirStatter checks the working directory.
type dirStatter interface {
	Stat(path string) (os.FileInfo, error)
}

// commandExecutor defines the interface for executing shell commands.
type commandExecutor interface {
	Stream(ctx context.Context, command []string, opts executor.Options) (*executor.Result, error)
}
