// Package executor runs external processes with bounded output, timeouts and
// optional incremental output callbacks.
package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/vim89/llm4s-sub012/internal/config"
)

// defaultMaxOutputBytes caps the output when the caller sets no limit.
const defaultMaxOutputBytes = 1 << 20

// Stream names an output stream of a process.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Result represents the outcome of a command execution.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
	TimedOut  bool
	Duration  time.Duration
}

// Options controls a single Stream call.
type Options struct {
	Dir string
	Env []string

	// Timeout of zero means no timeout beyond ctx.
	Timeout time.Duration

	// MaxOutputBytes caps stdout and stderr together.
	MaxOutputBytes int

	// OnOutput receives output chunks as they are captured. It is called from
	// one goroutine per stream, so stdout and stderr chunks may interleave.
	OnOutput func(stream Stream, chunk []byte)
}

// OSCommandExecutor runs real processes via os/exec.
type OSCommandExecutor struct {
	config *config.Config
}

// NewOSCommandExecutor creates a new OSCommandExecutor with injected config.
func NewOSCommandExecutor(cfg *config.Config) *OSCommandExecutor {
	if cfg == nil {
		panic("cfg is required")
	}
	return &OSCommandExecutor{config: cfg}
}

// Run executes a command and buffers its output. A non-zero exit code is
// reported in the Result, not as an error.
func (f *OSCommandExecutor) Run(ctx context.Context, command []string, dir string, env []string) (*Result, error) {
	return f.Stream(ctx, command, Options{Dir: dir, Env: env})
}

// Stream executes a command, passing output to opts.OnOutput while it runs.
// When opts.Timeout elapses the process group is interrupted, given the
// configured grace period, then killed; the partial Result is returned with
// ErrTimeout. Cancelling ctx kills the process immediately.
func (f *OSCommandExecutor) Stream(ctx context.Context, command []string, opts Options) (*Result, error) {
	if len(command) == 0 {
		return nil, os.ErrInvalid
	}

	maxBytes := opts.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxOutputBytes
	}
	grace := time.Duration(f.config.Tools.GracefulShutdownMs) * time.Millisecond

	budget := newOutputBudget(maxBytes)
	stdout := newCapture(budget, binarySampleSize, chunkFunc(opts.OnOutput, StreamStdout))
	stderr := newCapture(budget, binarySampleSize, chunkFunc(opts.OnOutput, StreamStderr))

	// We don't use CommandContext because timeouts get a graceful shutdown
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = grace
	setProcessGroup(cmd)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &CommandError{Cmd: command[0], Cause: err, Stage: "start"}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeoutC <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var waitErr, execErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		killProcessGroup(cmd)
		waitErr = <-done
		execErr = ctx.Err()
	case <-timeoutC:
		timedOut = true
		interruptProcessGroup(cmd)
		select {
		case waitErr = <-done:
		case <-time.After(grace):
			killProcessGroup(cmd)
			waitErr = <-done
		}
		execErr = ErrTimeout
	}

	exitCode, err := f.getExitCode(cmd, waitErr)
	if execErr == nil && err != nil {
		execErr = &CommandError{Cmd: command[0], Cause: err, Stage: "wait"}
	}
	if timedOut {
		exitCode = -1
	}
	stdout.flush()
	stderr.flush()

	return &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		Truncated: stdout.Truncated() || stderr.Truncated(),
		TimedOut:  timedOut,
		Duration:  time.Since(started),
	}, execErr
}

// getExitCode extracts the exit status from a Wait error. Errors that are not
// about the exit status itself are returned.
func (f *OSCommandExecutor) getExitCode(cmd *exec.Cmd, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	type exitCoder interface {
		ExitCode() int
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode(), nil
	}
	// Output pipes outlived the process; the status is still known
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}

func chunkFunc(fn func(Stream, []byte), stream Stream) func([]byte) {
	if fn == nil {
		return nil
	}
	return func(p []byte) { fn(stream, p) }
}
