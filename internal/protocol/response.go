package protocol

import "fmt"

// ResponseType is the discriminator of a Response.
type ResponseType string

const (
	TypeExploreFilesResponse     ResponseType = "explore_files_response"
	TypeReadFileResponse         ResponseType = "read_file_response"
	TypeWriteFileResponse        ResponseType = "write_file_response"
	TypeModifyFileResponse       ResponseType = "modify_file_response"
	TypeSearchFilesResponse      ResponseType = "search_files_response"
	TypeExecuteCommandResponse   ResponseType = "execute_command_response"
	TypeGetWorkspaceInfoResponse ResponseType = "get_workspace_info_response"
	TypeErrorResponse            ResponseType = "error_response"
)

// ErrorCode classifies an ErrorResponse.
type ErrorCode string

const (
	CodeShellDisabled   ErrorCode = "SHELL_DISABLED"
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
	CodeCommandTimeout  ErrorCode = "COMMAND_TIMEOUT"
	CodeInvalidCommand  ErrorCode = "INVALID_COMMAND"
)

// Response answers exactly one Command, identified by CommandID.
type Response interface {
	ID() string
	Type() ResponseType
	isResponse()
}

// FileEntry is one item of a directory listing. Metadata fields are present
// only when requested.
type FileEntry struct {
	Path         string  `json:"path" validate:"required"`
	IsDirectory  bool    `json:"isDirectory"`
	Size         *int64  `json:"size,omitempty"`
	LastModified *int64  `json:"lastModified,omitempty"`
	Permissions  *string `json:"permissions,omitempty"`
}

// FileMetadata describes the file a ReadFile touched. LastModified is Unix milliseconds.
type FileMetadata struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
	IsDirectory  bool   `json:"isDirectory"`
	Permissions  string `json:"permissions"`
}

// SearchMatch is one matching line.
type SearchMatch struct {
	Path          string   `json:"path"`
	Line          int      `json:"line"`
	MatchText     string   `json:"matchText"`
	ContextBefore []string `json:"contextBefore,omitzero"`
	ContextAfter  []string `json:"contextAfter,omitzero"`
}

// WorkspaceLimits reports the active sandbox policy.
type WorkspaceLimits struct {
	ShellAllowed                 bool  `json:"shellAllowed"`
	MaxFileSize                  int64 `json:"maxFileSize"`
	MaxDirectoryEntries          int   `json:"maxDirectoryEntries"`
	MaxSearchResults             int   `json:"maxSearchResults"`
	MaxOutputSize                int64 `json:"maxOutputSize"`
	DefaultCommandTimeoutSeconds int   `json:"defaultCommandTimeoutSeconds"`
}

type ExploreFilesResponse struct {
	CommandID   string      `json:"commandId" validate:"required"`
	Entries     []FileEntry `json:"entries"`
	IsTruncated bool        `json:"isTruncated"`
	TotalFound  int         `json:"totalFound"`
}

type ReadFileResponse struct {
	CommandID  string       `json:"commandId" validate:"required"`
	Content    string       `json:"content"`
	Metadata   FileMetadata `json:"metadata"`
	TotalLines int          `json:"totalLines"`
	StartLine  int          `json:"startLine"`
	EndLine    int          `json:"endLine"`
}

type WriteFileResponse struct {
	CommandID    string `json:"commandId" validate:"required"`
	Success      bool   `json:"success"`
	Path         string `json:"path"`
	BytesWritten int64  `json:"bytesWritten"`
}

type ModifyFileResponse struct {
	CommandID         string  `json:"commandId" validate:"required"`
	Success           bool    `json:"success"`
	Path              string  `json:"path"`
	OperationsApplied int     `json:"operationsApplied"`
	Diff              *string `json:"diff,omitempty"`
}

type SearchFilesResponse struct {
	CommandID    string        `json:"commandId" validate:"required"`
	Matches      []SearchMatch `json:"matches"`
	IsTruncated  bool          `json:"isTruncated"`
	TotalMatches int           `json:"totalMatches"`
}

type ExecuteCommandResponse struct {
	CommandID         string `json:"commandId" validate:"required"`
	ExitCode          int    `json:"exitCode"`
	Stdout            string `json:"stdout"`
	Stderr            string `json:"stderr"`
	IsOutputTruncated bool   `json:"isOutputTruncated"`
	DurationMs        int64  `json:"durationMs"`
	TimedOut          bool   `json:"timedOut,omitempty"`
}

type GetWorkspaceInfoResponse struct {
	CommandID string          `json:"commandId" validate:"required"`
	Root      string          `json:"root"`
	Structure []FileEntry     `json:"structure"`
	Limits    WorkspaceLimits `json:"limits"`
}

// ErrorResponse reports a failed command. It is also an error so callers can
// return it directly and branch on Code with errors.As.
type ErrorResponse struct {
	CommandID string    `json:"commandId" validate:"required"`
	Message   string    `json:"error" validate:"required"`
	Code      ErrorCode `json:"code" validate:"required"`
	Details   *string   `json:"details,omitempty"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (r ExploreFilesResponse) ID() string     { return r.CommandID }
func (r ReadFileResponse) ID() string         { return r.CommandID }
func (r WriteFileResponse) ID() string        { return r.CommandID }
func (r ModifyFileResponse) ID() string       { return r.CommandID }
func (r SearchFilesResponse) ID() string      { return r.CommandID }
func (r ExecuteCommandResponse) ID() string   { return r.CommandID }
func (r GetWorkspaceInfoResponse) ID() string { return r.CommandID }
func (e ErrorResponse) ID() string            { return e.CommandID }

func (ExploreFilesResponse) Type() ResponseType     { return TypeExploreFilesResponse }
func (ReadFileResponse) Type() ResponseType         { return TypeReadFileResponse }
func (WriteFileResponse) Type() ResponseType        { return TypeWriteFileResponse }
func (ModifyFileResponse) Type() ResponseType       { return TypeModifyFileResponse }
func (SearchFilesResponse) Type() ResponseType      { return TypeSearchFilesResponse }
func (ExecuteCommandResponse) Type() ResponseType   { return TypeExecuteCommandResponse }
func (GetWorkspaceInfoResponse) Type() ResponseType { return TypeGetWorkspaceInfoResponse }
func (ErrorResponse) Type() ResponseType            { return TypeErrorResponse }

func (ExploreFilesResponse) isResponse()     {}
func (ReadFileResponse) isResponse()         {}
func (WriteFileResponse) isResponse()        {}
func (ModifyFileResponse) isResponse()       {}
func (SearchFilesResponse) isResponse()      {}
func (ExecuteCommandResponse) isResponse()   {}
func (GetWorkspaceInfoResponse) isResponse() {}
func (ErrorResponse) isResponse()            {}
