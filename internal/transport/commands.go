package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/vim89/llm4s-sub012/internal/protocol"
)

// NewCommandID returns a fresh commandId.
func NewCommandID() string {
	return uuid.NewString()
}

// call sends cmd and asserts the response variant.
func call[T protocol.Response](ctx context.Context, c *Client, cmd protocol.Command, handler OutputHandler) (*T, error) {
	resp, err := c.SendStreaming(ctx, cmd, handler)
	if err != nil {
		return nil, err
	}
	typed, ok := resp.(T)
	if !ok {
		return nil, &UnexpectedResponseError{CommandID: cmd.ID(), Got: resp.Type()}
	}
	return &typed, nil
}

// The helpers below fill in a commandId when the caller left it empty.

func (c *Client) ExploreFiles(ctx context.Context, cmd protocol.ExploreFiles) (*protocol.ExploreFilesResponse, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = NewCommandID()
	}
	return call[protocol.ExploreFilesResponse](ctx, c, cmd, nil)
}

func (c *Client) ReadFile(ctx context.Context, cmd protocol.ReadFile) (*protocol.ReadFileResponse, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = NewCommandID()
	}
	return call[protocol.ReadFileResponse](ctx, c, cmd, nil)
}

func (c *Client) WriteFile(ctx context.Context, cmd protocol.WriteFile) (*protocol.WriteFileResponse, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = NewCommandID()
	}
	return call[protocol.WriteFileResponse](ctx, c, cmd, nil)
}

func (c *Client) ModifyFile(ctx context.Context, cmd protocol.ModifyFile) (*protocol.ModifyFileResponse, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = NewCommandID()
	}
	return call[protocol.ModifyFileResponse](ctx, c, cmd, nil)
}

func (c *Client) SearchFiles(ctx context.Context, cmd protocol.SearchFiles) (*protocol.SearchFilesResponse, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = NewCommandID()
	}
	return call[protocol.SearchFilesResponse](ctx, c, cmd, nil)
}

// ExecuteCommand runs a shell command. A non-nil handler receives its output
// while it runs.
func (c *Client) ExecuteCommand(ctx context.Context, cmd protocol.ExecuteCommand, handler OutputHandler) (*protocol.ExecuteCommandResponse, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = NewCommandID()
	}
	return call[protocol.ExecuteCommandResponse](ctx, c, cmd, handler)
}

func (c *Client) GetWorkspaceInfo(ctx context.Context) (*protocol.GetWorkspaceInfoResponse, error) {
	return call[protocol.GetWorkspaceInfoResponse](ctx, c, protocol.GetWorkspaceInfo{CommandID: NewCommandID()}, nil)
}
