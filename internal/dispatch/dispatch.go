// Package dispatch routes decoded commands to the workspace capability under
// the active sandbox policy and turns every outcome into a protocol response.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/paginationutil"
)

// OutputSink receives command output while it is produced.
type OutputSink func(outputType protocol.OutputType, content string)

// Capability performs the filesystem and process work behind each command.
// Implementations enforce path safety and resource limits; the dispatcher
// enforces the shell policy and result truncation.
type Capability interface {
	Explore(ctx context.Context, cmd protocol.ExploreFiles, limits sandbox.Limits) (*protocol.ExploreFilesResponse, error)
	Read(ctx context.Context, cmd protocol.ReadFile, limits sandbox.Limits) (*protocol.ReadFileResponse, error)
	Write(ctx context.Context, cmd protocol.WriteFile, limits sandbox.Limits) (*protocol.WriteFileResponse, error)
	Modify(ctx context.Context, cmd protocol.ModifyFile, limits sandbox.Limits) (*protocol.ModifyFileResponse, error)
	Search(ctx context.Context, cmd protocol.SearchFiles, limits sandbox.Limits) (*protocol.SearchFilesResponse, error)
	Execute(ctx context.Context, cmd protocol.ExecuteCommand, limits sandbox.Limits, timeout time.Duration, sink OutputSink) (*protocol.ExecuteCommandResponse, error)
	Info(ctx context.Context, cmd protocol.GetWorkspaceInfo, cfg sandbox.Config) (*protocol.GetWorkspaceInfoResponse, error)
}

// Dispatcher applies one sandbox policy to every command it routes.
type Dispatcher struct {
	capability Capability
	sandbox    sandbox.Config
	logger     *logging.Logger
}

// New creates a Dispatcher. A nil logger uses the default logger.
func New(capability Capability, cfg sandbox.Config, logger *logging.Logger) *Dispatcher {
	if capability == nil {
		panic("capability is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		capability: capability,
		sandbox:    cfg,
		logger:     logger.WithComponent("dispatch"),
	}
}

// Sandbox returns the active policy.
func (d *Dispatcher) Sandbox() sandbox.Config {
	return d.sandbox
}

// Dispatch runs cmd. ExecuteCommand is refused with SHELL_DISABLED before
// anything is spawned when the policy disallows the shell. Explore and search
// results never exceed the configured limits.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd protocol.Command, sink OutputSink) (protocol.Response, *DispatchError) {
	if sink == nil {
		sink = func(protocol.OutputType, string) {}
	}
	limits := d.sandbox.Limits

	switch c := cmd.(type) {
	case protocol.ExploreFiles:
		resp, err := d.capability.Explore(ctx, c, limits)
		if err == nil && resp != nil {
			truncateExplore(resp, limits.MaxDirectoryEntries)
		}
		return result(resp, err)
	case protocol.ReadFile:
		return result(d.capability.Read(ctx, c, limits))
	case protocol.WriteFile:
		return result(d.capability.Write(ctx, c, limits))
	case protocol.ModifyFile:
		return result(d.capability.Modify(ctx, c, limits))
	case protocol.SearchFiles:
		resp, err := d.capability.Search(ctx, c, limits)
		if err == nil && resp != nil {
			truncateSearch(resp, limits.MaxSearchResults)
		}
		return result(resp, err)
	case protocol.ExecuteCommand:
		if !d.sandbox.ShellAllowed {
			return nil, &DispatchError{
				Code:    protocol.CodeShellDisabled,
				Message: "shell execution is disabled by the sandbox policy (shellAllowed=false)",
			}
		}
		timeout := d.sandbox.CommandTimeout(c.TimeoutMs)
		return result(d.capability.Execute(ctx, c, limits, timeout, sink))
	case protocol.GetWorkspaceInfo:
		return result(d.capability.Info(ctx, c, d.sandbox))
	case nil:
		return nil, &DispatchError{Code: protocol.CodeInvalidCommand, Message: "no command"}
	default:
		return nil, &DispatchError{Code: protocol.CodeInvalidCommand, Message: fmt.Sprintf("unsupported command %T", cmd)}
	}
}

// Handle is Dispatch with every failure, including panics, turned into an
// ErrorResponse. It always returns a response for cmd.
func (d *Dispatcher) Handle(ctx context.Context, cmd protocol.Command, sink OutputSink) (resp protocol.Response) {
	commandID := ""
	if cmd != nil {
		commandID = cmd.ID()
	}

	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			d.logger.Error("command panicked", "command_id", commandID, "panic", r)
			resp = protocol.ErrorResponse{
				CommandID: commandID,
				Message:   fmt.Sprintf("internal error: %v", r),
				Code:      protocol.CodeExecutionFailed,
				Details:   &stack,
			}
		}
	}()

	resp, derr := d.Dispatch(ctx, cmd, sink)
	if derr != nil {
		d.logger.Debug("command failed", "command_id", commandID, "code", derr.Code, "error", derr.Message)
		return derr.Response(commandID)
	}
	return resp
}

// result turns a capability return into a response value.
func result[T protocol.Response](resp *T, err error) (protocol.Response, *DispatchError) {
	if err != nil {
		return nil, fromError(err)
	}
	if resp == nil {
		return nil, &DispatchError{Code: protocol.CodeExecutionFailed, Message: "capability returned no result"}
	}
	return *resp, nil
}

func truncateExplore(resp *protocol.ExploreFilesResponse, limit int) {
	if len(resp.Entries) <= limit {
		return
	}
	entries, page := paginationutil.ApplyPagination(resp.Entries, 0, limit)
	resp.Entries = entries
	resp.IsTruncated = true
	resp.TotalFound = max(resp.TotalFound, page.TotalCount)
}

func truncateSearch(resp *protocol.SearchFilesResponse, limit int) {
	if len(resp.Matches) <= limit {
		return
	}
	matches, page := paginationutil.ApplyPagination(resp.Matches, 0, limit)
	resp.Matches = matches
	resp.IsTruncated = true
	resp.TotalMatches = max(resp.TotalMatches, page.TotalCount)
}
