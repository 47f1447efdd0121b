package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func roundTripMessage(t *testing.T, m Message) Message {
	t.Helper()
	data, err := EncodeMessage(m)
	require.NoError(t, err)
	got, err := DecodeMessage(data)
	require.NoError(t, err, "payload: %s", data)
	return got
}

func TestRoundTrip_Commands(t *testing.T) {
	mode := WriteModeAppend
	commands := map[string]Command{
		"explore minimal": ExploreFiles{CommandID: "c1", Path: "."},
		"explore full": ExploreFiles{
			CommandID:       "c2",
			Path:            "src",
			Recursive:       ptr(true),
			ExcludePatterns: []string{"*.log", "node_modules/"},
			MaxDepth:        ptr(0),
			ReturnMetadata:  ptr(false),
		},
		"read minimal": ReadFile{CommandID: "c3", Path: "a.txt"},
		"read range":   ReadFile{CommandID: "c4", Path: "a.txt", StartLine: ptr(2), EndLine: ptr(5)},
		"read start":   ReadFile{CommandID: "c5", Path: "a.txt", StartLine: ptr(9)},
		"write empty":  WriteFile{CommandID: "c6", Path: "a.txt"},
		"write full": WriteFile{
			CommandID:         "c7",
			Path:              "dir/a.txt",
			Content:           "hello\n",
			Mode:              &mode,
			CreateDirectories: ptr(true),
		},
		"modify": ModifyFile{
			CommandID: "c8",
			Path:      "main.go",
			Operations: FileOperations{
				ReplaceLines{StartLine: 1, EndLine: 2, NewContent: "x"},
				InsertLines{AfterLine: 0, NewContent: "// header"},
				DeleteLines{StartLine: 4, EndLine: 4},
				RegexReplace{Pattern: `foo(\d)`, Replacement: "bar$1"},
				RegexReplace{Pattern: "a", Replacement: "", Flags: ptr("ig")},
			},
		},
		"search minimal": SearchFiles{CommandID: "c9", Paths: []string{"."}, Query: "TODO", SearchType: SearchLiteral},
		"search full": SearchFiles{
			CommandID:       "c10",
			Paths:           []string{"src", "docs"},
			Query:           `func \w+`,
			SearchType:      SearchRegex,
			Recursive:       ptr(false),
			ExcludePatterns: []string{"vendor/"},
			ContextLines:    ptr(2),
		},
		"execute minimal": ExecuteCommand{CommandID: "c11", Command: "ls"},
		"execute full": ExecuteCommand{
			CommandID:        "c12",
			Command:          "make test",
			WorkingDirectory: ptr("sub"),
			TimeoutMs:        ptr(int64(1500)),
			Environment:      map[string]string{"GOFLAGS": "-count=1"},
		},
		"info": GetWorkspaceInfo{CommandID: "c13"},
	}

	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			data, err := EncodeCommand(cmd)
			require.NoError(t, err)
			got, err := DecodeCommand(data)
			require.NoError(t, err)
			assert.Equal(t, cmd, got)

			wrapped := roundTripMessage(t, CommandMessage{Command: cmd})
			assert.Equal(t, CommandMessage{Command: cmd}, wrapped)
		})
	}
}

func TestRoundTrip_Responses(t *testing.T) {
	responses := map[string]Response{
		"explore": ExploreFilesResponse{
			CommandID: "r1",
			Entries: []FileEntry{
				{Path: "src", IsDirectory: true},
				{Path: "src/a.go", Size: ptr(int64(12)), LastModified: ptr(int64(1700000000000)), Permissions: ptr("-rw-r--r--")},
			},
			IsTruncated: true,
			TotalFound:  2,
		},
		"explore empty": ExploreFilesResponse{CommandID: "r2", Entries: []FileEntry{}},
		"read": ReadFileResponse{
			CommandID:  "r3",
			Content:    "a\nb",
			Metadata:   FileMetadata{Path: "x", Size: 3, LastModified: 5, Permissions: "-rw-------"},
			TotalLines: 2,
			StartLine:  1,
			EndLine:    2,
		},
		"write":          WriteFileResponse{CommandID: "r4", Success: true, Path: "a", BytesWritten: 10},
		"modify no diff": ModifyFileResponse{CommandID: "r5", Success: true, Path: "a", OperationsApplied: 1},
		"modify diff":    ModifyFileResponse{CommandID: "r6", Success: true, Path: "a", OperationsApplied: 2, Diff: ptr("--- a/a\n+++ b/a\n")},
		"search": SearchFilesResponse{
			CommandID: "r7",
			Matches: []SearchMatch{
				{Path: "a.go", Line: 3, MatchText: "TODO"},
				{Path: "b.go", Line: 1, MatchText: "TODO x", ContextBefore: []string{"p"}, ContextAfter: []string{"q", "r"}},
			},
			TotalMatches: 2,
		},
		"execute": ExecuteCommandResponse{CommandID: "r8", ExitCode: 2, Stdout: "out", Stderr: "err", DurationMs: 40},
		"execute timed out": ExecuteCommandResponse{
			CommandID: "r9", ExitCode: 124, IsOutputTruncated: true, TimedOut: true,
		},
		"info": GetWorkspaceInfoResponse{
			CommandID: "r10",
			Root:      "/workspace",
			Structure: []FileEntry{{Path: "README.md"}},
			Limits:    WorkspaceLimits{MaxFileSize: 1, MaxDirectoryEntries: 2, MaxSearchResults: 3, MaxOutputSize: 4, DefaultCommandTimeoutSeconds: 5},
		},
		"error":         ErrorResponse{CommandID: "r11", Message: "boom", Code: CodeExecutionFailed},
		"error details": ErrorResponse{CommandID: "r12", Message: "no shell", Code: CodeShellDisabled, Details: ptr("stack")},
	}

	for name, resp := range responses {
		t.Run(name, func(t *testing.T) {
			data, err := EncodeResponse(resp)
			require.NoError(t, err)
			got, err := DecodeResponse(data)
			require.NoError(t, err)
			assert.Equal(t, resp, got)

			wrapped := roundTripMessage(t, ResponseMessage{Response: resp})
			assert.Equal(t, ResponseMessage{Response: resp}, wrapped)
		})
	}
}

func TestRoundTrip_Envelopes(t *testing.T) {
	messages := []Message{
		Heartbeat{Timestamp: 1700000000000},
		HeartbeatResponse{Timestamp: 1700000000001},
		StreamingOutput{CommandID: "s1", OutputType: Stdout, Content: "line\n"},
		StreamingOutput{CommandID: "s1", OutputType: Stderr, IsComplete: true},
		CommandStarted{CommandID: "s2", Timestamp: 7},
		CommandCompleted{CommandID: "s2", Timestamp: 8, Success: true},
		ErrorMessage{Message: "bad frame"},
		ErrorMessage{Message: "bad frame", Details: ptr("raw")},
	}
	for _, m := range messages {
		t.Run(string(m.Type()), func(t *testing.T) {
			assert.Equal(t, m, roundTripMessage(t, m))
		})
	}
}

func TestEncode_OptionalFieldsAbsentNotNull(t *testing.T) {
	data, err := EncodeCommand(ReadFile{CommandID: "c", Path: "p"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]any{"type": "read_file", "commandId": "c", "path": "p"}, raw)
}

func TestRoundTrip_EmptyAndNilCollections(t *testing.T) {
	cmds := []Command{
		ExploreFiles{CommandID: "e1", Path: "."},
		ExploreFiles{CommandID: "e2", Path: ".", ExcludePatterns: []string{}},
		SearchFiles{CommandID: "s1", Paths: []string{"."}, Query: "q", SearchType: SearchLiteral, ExcludePatterns: []string{}},
		ExecuteCommand{CommandID: "x1", Command: "true"},
		ExecuteCommand{CommandID: "x2", Command: "true", Environment: map[string]string{}},
	}
	for _, cmd := range cmds {
		t.Run(cmd.ID(), func(t *testing.T) {
			data, err := EncodeCommand(cmd)
			require.NoError(t, err)
			got, err := DecodeCommand(data)
			require.NoError(t, err)
			assert.Equal(t, cmd, got)
		})
	}

	resp := SearchFilesResponse{CommandID: "s", Matches: []SearchMatch{{Path: "a", Line: 1, MatchText: "m", ContextBefore: []string{}}}}
	data, err := EncodeResponse(resp)
	require.NoError(t, err)
	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestEncode_WireShape(t *testing.T) {
	data, err := EncodeMessage(CommandMessage{Command: GetWorkspaceInfo{CommandID: "abc"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"command","command":{"type":"get_workspace_info","commandId":"abc"}}`, string(data))

	data, err = EncodeMessage(ResponseMessage{Response: ErrorResponse{CommandID: "abc", Message: "m", Code: CodeShellDisabled}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","response":{"type":"error_response","commandId":"abc","error":"m","code":"SHELL_DISABLED"}}`, string(data))
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"malformed json", `{"type":`, "malformed json"},
		{"not an object", `[1,2]`, "malformed json"},
		{"missing type", `{"timestamp":1}`, "discriminator"},
		{"unknown message", `{"type":"cancel","commandId":"x"}`, `unknown message type "cancel"`},
		{"unknown command", `{"type":"command","command":{"type":"format_disk","commandId":"x"}}`, `unknown command type "format_disk"`},
		{"missing command", `{"type":"command"}`, `"command"`},
		{"null response", `{"type":"response","response":null}`, `"response"`},
		{"missing commandId", `{"type":"command","command":{"type":"read_file","path":"a"}}`, `"commandId"`},
		{"missing path", `{"type":"command","command":{"type":"read_file","commandId":"x"}}`, `"path"`},
		{"bad search type", `{"type":"command","command":{"type":"search_files","commandId":"x","paths":["."],"query":"q","searchType":"fuzzy"}}`, `"searchType"`},
		{"empty operations", `{"type":"command","command":{"type":"modify_file","commandId":"x","path":"a","operations":[]}}`, `"operations"`},
		{"bad operation", `{"type":"command","command":{"type":"modify_file","commandId":"x","path":"a","operations":[{"type":"replace","startLine":3,"endLine":1}]}}`, `"endLine"`},
		{"unknown operation", `{"type":"command","command":{"type":"modify_file","commandId":"x","path":"a","operations":[{"type":"rotate"}]}}`, `unknown file operation type "rotate"`},
		{"wrong field type", `{"type":"heartbeat","timestamp":"now"}`, "timestamp"},
		{"bad output type", `{"type":"streaming_output","commandId":"x","outputType":"stdin","content":""}`, `"outputType"`},
		{"error without code", `{"type":"response","response":{"type":"error_response","commandId":"x","error":"e"}}`, `"code"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.payload))

			assert.Nil(t, msg)
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, tt.payload, string(decErr.Raw))
			assert.Contains(t, decErr.Reason, tt.reason)
		})
	}
}

func TestDecodeCommand_NeverPartial(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"execute_command","commandId":"x"}`))

	assert.Nil(t, cmd)
	assert.Error(t, err)
}

func TestDecodeError_TruncatesRaw(t *testing.T) {
	big := make([]byte, 1000)
	for i := range big {
		big[i] = 'x'
	}
	err := &DecodeError{Raw: big, Reason: "r"}
	assert.Less(t, len(err.Error()), 400)
	assert.Len(t, err.Raw, 1000)
}

func TestPeekCommandID(t *testing.T) {
	assert.Equal(t, "abc", PeekCommandID([]byte(`{"type":"command","command":{"type":"nope","commandId":"abc"}}`)))
	assert.Equal(t, "", PeekCommandID([]byte(`{"type":"command"}`)))
	assert.Equal(t, "", PeekCommandID([]byte(`garbage`)))
}

func TestErrorResponse_IsError(t *testing.T) {
	var err error = ErrorResponse{CommandID: "x", Message: "shellAllowed is false", Code: CodeShellDisabled}

	var resp ErrorResponse
	require.True(t, errors.As(err, &resp))
	assert.Equal(t, CodeShellDisabled, resp.Code)
	assert.Contains(t, err.Error(), "SHELL_DISABLED")
}

func TestWriteFile_EffectiveMode(t *testing.T) {
	assert.Equal(t, WriteModeOverwrite, WriteFile{}.EffectiveMode())
	mode := WriteModeCreate
	assert.Equal(t, WriteModeCreate, WriteFile{Mode: &mode}.EffectiveMode())
}

func TestEncode_NilVariant(t *testing.T) {
	_, err := EncodeCommand(nil)
	assert.Error(t, err)
	_, err = EncodeMessage(CommandMessage{})
	assert.Error(t, err)
}
