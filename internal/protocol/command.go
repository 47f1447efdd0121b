// Package protocol defines the messages exchanged between the controller and
// the workspace runner. Every union is a sealed interface whose variants are
// encoded as JSON objects carrying a "type" discriminator.
package protocol

// CommandType is the discriminator of a Command.
type CommandType string

const (
	TypeExploreFiles     CommandType = "explore_files"
	TypeReadFile         CommandType = "read_file"
	TypeWriteFile        CommandType = "write_file"
	TypeModifyFile       CommandType = "modify_file"
	TypeSearchFiles      CommandType = "search_files"
	TypeExecuteCommand   CommandType = "execute_command"
	TypeGetWorkspaceInfo CommandType = "get_workspace_info"
)

// Command is a request from the controller. The set of variants is closed.
type Command interface {
	ID() string
	Type() CommandType
	isCommand()
}

// WriteMode selects how WriteFile treats an existing file.
type WriteMode string

const (
	WriteModeCreate    WriteMode = "create"
	WriteModeOverwrite WriteMode = "overwrite"
	WriteModeAppend    WriteMode = "append"
)

// SearchType selects how SearchFiles interprets its query.
type SearchType string

const (
	SearchLiteral SearchType = "literal"
	SearchRegex   SearchType = "regex"
)

// ExploreFiles lists the entries under a directory.
type ExploreFiles struct {
	CommandID       string   `json:"commandId" validate:"required"`
	Path            string   `json:"path" validate:"required"`
	Recursive       *bool    `json:"recursive,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitzero"`
	MaxDepth        *int     `json:"maxDepth,omitempty" validate:"omitempty,gte=0"`
	ReturnMetadata  *bool    `json:"returnMetadata,omitempty"`
}

// ReadFile reads a file, optionally restricted to an inclusive 1-based line range.
type ReadFile struct {
	CommandID string `json:"commandId" validate:"required"`
	Path      string `json:"path" validate:"required"`
	StartLine *int   `json:"startLine,omitempty" validate:"omitempty,gte=1"`
	EndLine   *int   `json:"endLine,omitempty" validate:"omitempty,gte=1"`
}

// WriteFile writes content to a file. Mode defaults to overwrite.
type WriteFile struct {
	CommandID         string     `json:"commandId" validate:"required"`
	Path              string     `json:"path" validate:"required"`
	Content           string     `json:"content"`
	Mode              *WriteMode `json:"mode,omitempty" validate:"omitempty,oneof=create overwrite append"`
	CreateDirectories *bool      `json:"createDirectories,omitempty"`
}

// ModifyFile applies an ordered list of edits to an existing file.
type ModifyFile struct {
	CommandID  string         `json:"commandId" validate:"required"`
	Path       string         `json:"path" validate:"required"`
	Operations FileOperations `json:"operations" validate:"required,min=1"`
}

// SearchFiles searches file contents under one or more paths.
type SearchFiles struct {
	CommandID       string     `json:"commandId" validate:"required"`
	Paths           []string   `json:"paths" validate:"required,min=1"`
	Query           string     `json:"query" validate:"required"`
	SearchType      SearchType `json:"searchType" validate:"required,oneof=literal regex"`
	Recursive       *bool      `json:"recursive,omitempty"`
	ExcludePatterns []string   `json:"excludePatterns,omitzero"`
	ContextLines    *int       `json:"contextLines,omitempty" validate:"omitempty,gte=0"`
}

// ExecuteCommand runs a shell command inside the workspace.
type ExecuteCommand struct {
	CommandID        string            `json:"commandId" validate:"required"`
	Command          string            `json:"command" validate:"required"`
	WorkingDirectory *string           `json:"workingDirectory,omitempty"`
	TimeoutMs        *int64            `json:"timeoutMs,omitempty" validate:"omitempty,gt=0"`
	Environment      map[string]string `json:"environment,omitzero"`
}

// GetWorkspaceInfo asks for the workspace root, a shallow listing and the active limits.
type GetWorkspaceInfo struct {
	CommandID string `json:"commandId" validate:"required"`
}

func (c ExploreFiles) ID() string     { return c.CommandID }
func (c ReadFile) ID() string         { return c.CommandID }
func (c WriteFile) ID() string        { return c.CommandID }
func (c ModifyFile) ID() string       { return c.CommandID }
func (c SearchFiles) ID() string      { return c.CommandID }
func (c ExecuteCommand) ID() string   { return c.CommandID }
func (c GetWorkspaceInfo) ID() string { return c.CommandID }

func (ExploreFiles) Type() CommandType     { return TypeExploreFiles }
func (ReadFile) Type() CommandType         { return TypeReadFile }
func (WriteFile) Type() CommandType        { return TypeWriteFile }
func (ModifyFile) Type() CommandType       { return TypeModifyFile }
func (SearchFiles) Type() CommandType      { return TypeSearchFiles }
func (ExecuteCommand) Type() CommandType   { return TypeExecuteCommand }
func (GetWorkspaceInfo) Type() CommandType { return TypeGetWorkspaceInfo }

func (ExploreFiles) isCommand()     {}
func (ReadFile) isCommand()         {}
func (WriteFile) isCommand()        {}
func (ModifyFile) isCommand()       {}
func (SearchFiles) isCommand()      {}
func (ExecuteCommand) isCommand()   {}
func (GetWorkspaceInfo) isCommand() {}

// EffectiveMode returns the write mode, defaulting to overwrite.
func (c WriteFile) EffectiveMode() WriteMode {
	if c.Mode == nil {
		return WriteModeOverwrite
	}
	return *c.Mode
}
