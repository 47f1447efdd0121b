// Package workspace assembles the file, directory, search and shell tools
// into the capability the dispatcher runs commands against.
package workspace

import (
	"context"
	"time"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/dispatch"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/directory"
	"github.com/vim89/llm4s-sub012/internal/tool/file"
	"github.com/vim89/llm4s-sub012/internal/tool/search"
	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
	"github.com/vim89/llm4s-sub012/internal/tool/service/fs"
	"github.com/vim89/llm4s-sub012/internal/tool/service/path"
	"github.com/vim89/llm4s-sub012/internal/tool/shell"
)

// Agent implements dispatch.Capability for one workspace root.
type Agent struct {
	resolver *path.Resolver
	config   *config.Config

	explore *directory.ExploreTool
	read    *file.ReadFileTool
	write   *file.WriteFileTool
	modify  *file.ModifyFileTool
	search  *search.SearchTool
	shell   *shell.ShellTool
}

var _ dispatch.Capability = (*Agent)(nil)

// NewAgent creates an Agent rooted at root, which must be an existing directory.
func NewAgent(root string, cfg *config.Config) (*Agent, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	canonical, err := path.CanonicaliseRoot(root)
	if err != nil {
		return nil, err
	}

	fileOps := fs.NewOSFileSystem()
	resolver := path.NewResolver(canonical)
	return &Agent{
		resolver: resolver,
		config:   cfg,
		explore:  directory.NewExploreTool(fileOps, resolver),
		read:     file.NewReadFileTool(fileOps, resolver),
		write:    file.NewWriteFileTool(fileOps, resolver),
		modify:   file.NewModifyFileTool(fileOps, resolver),
		search:   search.NewSearchTool(fileOps, resolver, cfg),
		shell:    shell.NewShellTool(fileOps, executor.NewOSCommandExecutor(cfg), resolver, cfg),
	}, nil
}

// Root returns the canonical workspace root.
func (a *Agent) Root() string {
	return a.resolver.Root()
}

func (a *Agent) Explore(ctx context.Context, cmd protocol.ExploreFiles, limits sandbox.Limits) (*protocol.ExploreFilesResponse, error) {
	return a.explore.Run(ctx, cmd, limits)
}

func (a *Agent) Read(ctx context.Context, cmd protocol.ReadFile, limits sandbox.Limits) (*protocol.ReadFileResponse, error) {
	return a.read.Run(ctx, cmd, limits)
}

func (a *Agent) Write(ctx context.Context, cmd protocol.WriteFile, limits sandbox.Limits) (*protocol.WriteFileResponse, error) {
	return a.write.Run(ctx, cmd, limits)
}

func (a *Agent) Modify(ctx context.Context, cmd protocol.ModifyFile, limits sandbox.Limits) (*protocol.ModifyFileResponse, error) {
	return a.modify.Run(ctx, cmd, limits)
}

func (a *Agent) Search(ctx context.Context, cmd protocol.SearchFiles, limits sandbox.Limits) (*protocol.SearchFilesResponse, error) {
	return a.search.Run(ctx, cmd, limits)
}

func (a *Agent) Execute(ctx context.Context, cmd protocol.ExecuteCommand, limits sandbox.Limits, timeout time.Duration, sink dispatch.OutputSink) (*protocol.ExecuteCommandResponse, error) {
	return a.shell.Run(ctx, cmd, limits, timeout, sink)
}

// Info reports the workspace root, its immediate children and the active
// policy. The listing is capped at the smaller of the configured structure
// limit and maxDirectoryEntries.
func (a *Agent) Info(ctx context.Context, cmd protocol.GetWorkspaceInfo, cfg sandbox.Config) (*protocol.GetWorkspaceInfoResponse, error) {
	listLimits := cfg.Limits
	listLimits.MaxDirectoryEntries = min(listLimits.MaxDirectoryEntries, a.config.Tools.InfoStructureLimit)

	listing, err := a.explore.Run(ctx, protocol.ExploreFiles{CommandID: cmd.CommandID, Path: "."}, listLimits)
	if err != nil {
		return nil, err
	}

	return &protocol.GetWorkspaceInfoResponse{
		CommandID: cmd.CommandID,
		Root:      a.resolver.Root(),
		Structure: listing.Entries,
		Limits: protocol.WorkspaceLimits{
			ShellAllowed:                 cfg.ShellAllowed,
			MaxFileSize:                  cfg.Limits.MaxFileSize,
			MaxDirectoryEntries:          cfg.Limits.MaxDirectoryEntries,
			MaxSearchResults:             cfg.Limits.MaxSearchResults,
			MaxOutputSize:                cfg.Limits.MaxOutputSize,
			DefaultCommandTimeoutSeconds: cfg.DefaultCommandTimeoutSeconds,
		},
	}, nil
}
