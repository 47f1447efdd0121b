package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
	"github.com/vim89/llm4s-sub012/internal/tool/service/fs"
	"github.com/vim89/llm4s-sub012/internal/tool/service/path"
)

// mockExecutor records the last call and returns a canned result.
type mockExecutor struct {
	command []string
	opts    executor.Options
	result  *executor.Result
	err     error
}

func (m *mockExecutor) Stream(ctx context.Context, command []string, opts executor.Options) (*executor.Result, error) {
	m.command = command
	m.opts = opts
	return m.result, m.err
}

func newTool(t *testing.T, exec commandExecutor) (string, *ShellTool) {
	t.Helper()
	root, err := path.CanonicaliseRoot(t.TempDir())
	require.NoError(t, err)
	return root, NewShellTool(fs.NewOSFileSystem(), exec, path.NewResolver(root), config.DefaultConfig())
}

func ptr[T any](v T) *T { return &v }

func TestShell_BuildsInvocation(t *testing.T) {
	exec := &mockExecutor{result: &executor.Result{Stdout: "ok\n", Duration: 1500 * time.Millisecond}}
	root, tool := newTool(t, exec)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	resp, err := tool.Run(context.Background(), protocol.ExecuteCommand{
		CommandID:        "x",
		Command:          "ls -la",
		WorkingDirectory: ptr("sub"),
		Environment:      map[string]string{"B": "2", "A": "1"},
	}, sandbox.Permissive().Limits, 5*time.Second, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sh", "-c", "ls -la"}, exec.command)
	assert.Equal(t, filepath.Join(root, "sub"), exec.opts.Dir)
	assert.Equal(t, 5*time.Second, exec.opts.Timeout)
	assert.Equal(t, int(sandbox.Permissive().Limits.MaxOutputSize), exec.opts.MaxOutputBytes)
	assert.Equal(t, []string{"A=1", "B=2"}, exec.opts.Env[len(exec.opts.Env)-2:])
	assert.Nil(t, exec.opts.OnOutput)

	assert.Equal(t, "x", resp.CommandID)
	assert.Equal(t, "ok\n", resp.Stdout)
	assert.Equal(t, int64(1500), resp.DurationMs)
	assert.False(t, resp.TimedOut)
}

func TestShell_TimeoutIsResponse(t *testing.T) {
	exec := &mockExecutor{
		result: &executor.Result{Stdout: "partial", ExitCode: -1, TimedOut: true},
		err:    executor.ErrTimeout,
	}
	_, tool := newTool(t, exec)

	resp, err := tool.Run(context.Background(), protocol.ExecuteCommand{CommandID: "x", Command: "sleep 10"}, sandbox.Permissive().Limits, time.Second, nil)

	require.NoError(t, err)
	assert.True(t, resp.TimedOut)
	assert.Equal(t, TimeoutExitCode, resp.ExitCode)
	assert.Equal(t, "partial", resp.Stdout)
}

func TestShell_ExecutorFailure(t *testing.T) {
	exec := &mockExecutor{err: errors.New("fork failed")}
	_, tool := newTool(t, exec)

	_, err := tool.Run(context.Background(), protocol.ExecuteCommand{CommandID: "x", Command: "true"}, sandbox.Permissive().Limits, time.Second, nil)

	assert.EqualError(t, err, "fork failed")
}

func TestShell_WorkingDirectory(t *testing.T) {
	root, tool := newTool(t, &mockExecutor{result: &executor.Result{}})
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), nil, 0o644))
	limits := sandbox.Permissive().Limits

	_, err := tool.Run(context.Background(), protocol.ExecuteCommand{CommandID: "x", Command: "true", WorkingDirectory: ptr("nope")}, limits, time.Second, nil)
	var wdErr *WorkingDirError
	require.ErrorAs(t, err, &wdErr)
	assert.True(t, wdErr.FileMissing())

	_, err = tool.Run(context.Background(), protocol.ExecuteCommand{CommandID: "x", Command: "true", WorkingDirectory: ptr("file.txt")}, limits, time.Second, nil)
	require.ErrorAs(t, err, &wdErr)
	assert.False(t, wdErr.FileMissing())

	_, err = tool.Run(context.Background(), protocol.ExecuteCommand{CommandID: "x", Command: "true", WorkingDirectory: ptr("/")}, limits, time.Second, nil)
	assert.ErrorIs(t, err, path.ErrOutsideWorkspace)
}

// The tests below run real processes.

func TestShell_RealProcess(t *testing.T) {
	_, tool := newTool(t, executor.NewOSCommandExecutor(config.DefaultConfig()))

	var mu sync.Mutex
	var streamed []string
	sink := func(kind protocol.OutputType, chunk string) {
		mu.Lock()
		defer mu.Unlock()
		streamed = append(streamed, string(kind)+":"+chunk)
	}

	resp, err := tool.Run(context.Background(), protocol.ExecuteCommand{
		CommandID:   "x",
		Command:     `echo "$GREETING"; echo oops >&2; exit 3`,
		Environment: map[string]string{"GREETING": "hello"},
	}, sandbox.Permissive().Limits, 10*time.Second, sink)

	require.NoError(t, err)
	assert.Equal(t, 3, resp.ExitCode)
	assert.Equal(t, "hello\n", resp.Stdout)
	assert.Equal(t, "oops\n", resp.Stderr)

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(streamed, "|")
	assert.Contains(t, joined, "stdout:hello")
	assert.Contains(t, joined, "stderr:oops")
}

func TestShell_RealTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tools.GracefulShutdownMs = 100
	_, tool := newTool(t, executor.NewOSCommandExecutor(cfg))

	start := time.Now()
	resp, err := tool.Run(context.Background(), protocol.ExecuteCommand{CommandID: "x", Command: "sleep 5"}, sandbox.Permissive().Limits, 200*time.Millisecond, nil)

	require.NoError(t, err)
	assert.True(t, resp.TimedOut)
	assert.Equal(t, TimeoutExitCode, resp.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestShell_OutputCapped(t *testing.T) {
	_, tool := newTool(t, executor.NewOSCommandExecutor(config.DefaultConfig()))
	limits := sandbox.Permissive().Limits
	limits.MaxOutputSize = 16

	resp, err := tool.Run(context.Background(), protocol.ExecuteCommand{CommandID: "x", Command: "yes | head -n 100"}, limits, 10*time.Second, nil)

	require.NoError(t, err)
	assert.True(t, resp.IsOutputTruncated)
	assert.LessOrEqual(t, len(resp.Stdout), 16)
}

func TestShell_OutputCapSharedByStreams(t *testing.T) {
	_, tool := newTool(t, executor.NewOSCommandExecutor(config.DefaultConfig()))
	limits := sandbox.Permissive().Limits
	limits.MaxOutputSize = 16

	resp, err := tool.Run(context.Background(), protocol.ExecuteCommand{
		CommandID: "x",
		Command:   "yes out | head -n 50; yes err | head -n 50 >&2",
	}, limits, 10*time.Second, nil)

	require.NoError(t, err)
	assert.True(t, resp.IsOutputTruncated)
	assert.LessOrEqual(t, len(resp.Stdout)+len(resp.Stderr), 16)
}

func TestShell_StreamedRunesSurviveTheWire(t *testing.T) {
	_, tool := newTool(t, executor.NewOSCommandExecutor(config.DefaultConfig()))

	var mu sync.Mutex
	var received strings.Builder
	sink := func(kind protocol.OutputType, chunk string) {
		data, err := protocol.EncodeMessage(protocol.StreamingOutput{CommandID: "x", OutputType: kind, Content: chunk})
		require.NoError(t, err)
		msg, err := protocol.DecodeMessage(data)
		require.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		received.WriteString(msg.(protocol.StreamingOutput).Content)
	}

	resp, err := tool.Run(context.Background(), protocol.ExecuteCommand{
		CommandID: "x",
		Command:   `printf '\303'; sleep 0.2; printf '\251'`,
	}, sandbox.Permissive().Limits, 10*time.Second, sink)

	require.NoError(t, err)
	assert.Equal(t, "é", resp.Stdout)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "é", received.String())
}
