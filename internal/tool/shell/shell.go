// Package shell implements execute_command: a command line run through the
// configured shell inside the workspace.
package shell

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
)

// TimeoutExitCode is reported for a command killed by its timeout, matching coreutils timeout(1).
const TimeoutExitCode = 124

// ShellTool executes commands inside the workspace.
type ShellTool struct {
	fs       dirStatter
	executor commandExecutor
	resolver pathResolver
	config   *config.Config
}

// NewShellTool creates a new ShellTool with injected dependencies.
func NewShellTool(fs dirStatter, commandExecutor commandExecutor, resolver pathResolver, cfg *config.Config) *ShellTool {
	if fs == nil {
		panic("fs is required")
	}
	if commandExecutor == nil {
		panic("commandExecutor is required")
	}
	if resolver == nil {
		panic("resolver is required")
	}
	if cfg == nil {
		panic("cfg is required")
	}
	return &ShellTool{fs: fs, executor: commandExecutor, resolver: resolver, config: cfg}
}

// Run executes cmd.Command with `<shell> -c`, streaming output to sink as it
// is produced. Each stream is capped at maxOutputSize.
// A command that outlives timeout is interrupted, then killed, and reported
// with TimedOut set and exit code 124. A non-zero exit is not an error.
// NOTE: This tool does NOT enforce the shell policy - the dispatcher does.
func (t *ShellTool) Run(
	ctx context.Context,
	cmd protocol.ExecuteCommand,
	limits sandbox.Limits,
	timeout time.Duration,
	sink func(protocol.OutputType, string),
) (*protocol.ExecuteCommandResponse, error) {
	workingDir := "."
	if cmd.WorkingDirectory != nil && *cmd.WorkingDirectory != "" {
		workingDir = *cmd.WorkingDirectory
	}
	wdAbs, err := t.resolver.Abs(workingDir)
	if err != nil {
		return nil, err
	}
	info, err := t.fs.Stat(wdAbs)
	if err != nil {
		return nil, &WorkingDirError{Path: workingDir, Cause: err}
	}
	if !info.IsDir() {
		return nil, &WorkingDirError{Path: workingDir}
	}

	opts := executor.Options{
		Dir:            wdAbs,
		Env:            buildEnv(os.Environ(), cmd.Environment),
		Timeout:        timeout,
		MaxOutputBytes: int(limits.MaxOutputSize),
	}
	if sink != nil {
		opts.OnOutput = func(stream executor.Stream, chunk []byte) {
			sink(outputType(stream), string(chunk))
		}
	}

	result, execErr := t.executor.Stream(ctx, []string{t.config.Tools.Shell, "-c", cmd.Command}, opts)
	if execErr != nil && !errors.Is(execErr, executor.ErrTimeout) {
		return nil, execErr
	}

	resp := &protocol.ExecuteCommandResponse{
		CommandID:         cmd.CommandID,
		ExitCode:          result.ExitCode,
		Stdout:            result.Stdout,
		Stderr:            result.Stderr,
		IsOutputTruncated: result.Truncated,
		DurationMs:        result.Duration.Milliseconds(),
	}
	if result.TimedOut {
		resp.TimedOut = true
		resp.ExitCode = TimeoutExitCode
	}
	return resp, nil
}

// buildEnv overlays overrides on base. Keys are applied in sorted order so
// the result is deterministic; later entries win in exec.
func buildEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

func outputType(stream executor.Stream) protocol.OutputType {
	if stream == executor.StreamStderr {
		return protocol.Stderr
	}
	return protocol.Stdout
}
