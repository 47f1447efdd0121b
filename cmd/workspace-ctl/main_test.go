package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/runner"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/workspace"
)

type harness struct {
	cfg    *config.Config
	url    string
	root   string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, sandbox.Permissive())
}

func newHarnessWith(t *testing.T, policy sandbox.Config) *harness {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("one\ntwo\nthree\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "util"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "util", "util.go"), []byte("package util\n\n// TODO: more\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Tools.GracefulShutdownMs = 100
	agent, err := workspace.NewAgent(root, cfg)
	require.NoError(t, err)
	srv, err := runner.New(runner.Options{Config: cfg, Sandbox: policy, Capability: agent, Logger: logging.Discard()})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	return &harness{
		cfg:    config.DefaultConfig(),
		url:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		root:   root,
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
}

func (h *harness) run(name string, args ...string) error {
	c := &cli{cfg: h.cfg, stdout: h.stdout, stderr: h.stderr}
	return c.dispatch(context.Background(), name, append([]string{"--url", h.url, "--log-level", "error"}, args...))
}

func TestExec(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("exec", "-e", "GREETING=hi", "echo", "$GREETING;", "echo", "oops", ">&2"))
	assert.Equal(t, "hi\n", h.stdout.String())
	assert.Equal(t, "oops\n", h.stderr.String())
}

func TestExec_ExitCode(t *testing.T) {
	h := newHarness(t)

	err := h.run("exec", "exit 3")
	var exit *exitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.ExitCode())
}

func TestExec_WorkingDirectory(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("exec", "--cwd", "pkg", "ls"))
	assert.Equal(t, "util\n", h.stdout.String())
}

func TestExec_TimeoutOutlastsClientWait(t *testing.T) {
	policy := sandbox.Permissive()
	policy.DefaultCommandTimeoutSeconds = 1

	tests := []struct {
		name string
		args []string
	}{
		{"explicit timeout", []string{"--timeout", "500ms", "sleep 5"}},
		{"sandbox default", []string{"sleep 5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarnessWith(t, policy)
			h.cfg.Controller.CommandTimeoutMs = 200

			err := h.run("exec", tt.args...)
			var exit *exitError
			require.ErrorAs(t, err, &exit)
			assert.Equal(t, 124, exit.ExitCode())
			assert.Contains(t, h.stderr.String(), "[timed out after")
		})
	}
}

func TestExec_BadArguments(t *testing.T) {
	h := newHarness(t)

	assert.ErrorContains(t, h.run("exec"), "needs a command")
	assert.ErrorContains(t, h.run("exec", "-e", "NOEQUALS", "true"), "KEY=VALUE")
}

func TestExplore(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("explore", "-r"))
	assert.Equal(t, "pkg/\npkg/util/\nnotes.txt\npkg/util/util.go\n", h.stdout.String())

	h.stdout.Reset()
	require.NoError(t, h.run("explore", "-r", "--depth", "0"))
	assert.Equal(t, "pkg/\npkg/util/\nnotes.txt\n", h.stdout.String())

	h.stdout.Reset()
	require.NoError(t, h.run("explore", "-l", "pkg"))
	assert.Contains(t, h.stdout.String(), "pkg/util/")
	assert.Contains(t, h.stdout.String(), "rwx")
}

func TestRead(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("read", "--start", "2", "--end", "3", "notes.txt"))
	assert.Equal(t, "two\nthree\n", h.stdout.String())

	err := h.run("read", "missing.txt")
	var errResp *protocol.ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, protocol.CodeExecutionFailed, errResp.Code)

	assert.Error(t, h.run("read"))
}

func TestSearch(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("search", "TODO"))
	assert.Equal(t, "pkg/util/util.go:3:// TODO: more\n", h.stdout.String())

	h.stdout.Reset()
	require.NoError(t, h.run("search", "--regex", "^t[a-z]+$", "notes.txt"))
	assert.Equal(t, "notes.txt:2:two\nnotes.txt:3:three\n", h.stdout.String())
}

func TestInfo(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("info"))
	var resp protocol.GetWorkspaceInfoResponse
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &resp))
	assert.True(t, resp.Limits.ShellAllowed)
	assert.NotEmpty(t, resp.Structure)
}

func TestStart_HasNoDetachMode(t *testing.T) {
	var stderr bytes.Buffer
	c := &cli{cfg: config.DefaultConfig(), stdout: &bytes.Buffer{}, stderr: &stderr}

	assert.ErrorContains(t, c.dispatch(context.Background(), "start", []string{"--detach"}), "unknown flag: --detach")
	assert.ErrorContains(t, c.dispatch(context.Background(), "start", []string{"-d"}), "unknown shorthand flag: 'd'")
}

func TestDispatch_Unknown(t *testing.T) {
	c := &cli{cfg: config.DefaultConfig(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	assert.ErrorContains(t, c.dispatch(context.Background(), "launch", nil), "unknown command")
}
