package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/container"
	"github.com/vim89/llm4s-sub012/internal/protocol"
	"github.com/vim89/llm4s-sub012/internal/tool/service/executor"
	"github.com/vim89/llm4s-sub012/internal/transport"
)

// exitError carries a remote exit code out to main.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("command exited with status %d", e.code) }

func (e *exitError) ExitCode() int { return e.code }

func (c *cli) runtime() *container.DockerRuntime {
	return container.NewDockerRuntime(c.cfg.Controller.RuntimeBinary, executor.NewOSCommandExecutor(c.cfg))
}

func (c *cli) start(ctx context.Context, args []string) error {
	fs := c.flagSet("start")
	fs.StringVar(&c.cfg.Controller.Image, "image", c.cfg.Controller.Image, "runner image")
	fs.StringVar(&c.cfg.Controller.ContainerName, "name", c.cfg.Controller.ContainerName, "container name")
	fs.StringVar(&c.cfg.Controller.HostDir, "dir", c.cfg.Controller.HostDir, "host directory mounted as the workspace")
	if err := c.parse(fs, args); err != nil {
		return err
	}

	rt := c.runtime()
	interval := time.Duration(c.cfg.Controller.StartupIntervalMs) * time.Millisecond
	if err := rt.EnsureReady(ctx, c.cfg.Controller.StartupAttempts, interval); err != nil {
		return err
	}

	opts := container.OptionsFromConfig(c.cfg, rt)
	opts.Logger = c.logger
	m := container.NewManager(opts)
	if !m.Start(ctx) {
		return errors.New("container failed to start")
	}
	fmt.Fprintf(c.stdout, "runner ready at %s\n", m.SocketURL())

	// Hold the container until interrupted or it goes down. The runner exits
	// on its own once no controller heartbeats it, so start cannot detach.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
hold:
	for m.State() == container.Running {
		select {
		case <-ctx.Done():
			break hold
		case <-ticker.C:
		}
	}
	if m.State() == container.Down {
		fmt.Fprintf(c.stderr, "runner went down: %s\n", m.Reason())
	}

	// ctx may already be cancelled; stopping gets its own deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if !m.Stop(stopCtx) {
		return errors.New("container did not stop cleanly")
	}
	return nil
}

func (c *cli) stop(ctx context.Context, args []string) error {
	fs := c.flagSet("stop")
	fs.StringVar(&c.cfg.Controller.ContainerName, "name", c.cfg.Controller.ContainerName, "container name")
	if err := c.parse(fs, args); err != nil {
		return err
	}

	rt := c.runtime()
	name := c.cfg.Controller.ContainerName
	steps := []struct {
		name string
		fn   func(context.Context, string) (*executor.Result, error)
	}{
		{"stop", rt.Stop},
		{"rm", rt.Remove},
	}
	var failed []string
	for _, step := range steps {
		res, err := step.fn(ctx, name)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", step.name, err))
			continue
		}
		if res.ExitCode != 0 {
			failed = append(failed, fmt.Sprintf("%s: %s", step.name, strings.TrimSpace(res.Stderr)))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to stop %s: %s", name, strings.Join(failed, "; "))
	}
	fmt.Fprintf(c.stdout, "stopped %s\n", name)
	return nil
}

// connect dials the runner named by --url, or the configured host port.
func (c *cli) connect(ctx context.Context, url string) (*transport.Client, error) {
	if url == "" {
		url = fmt.Sprintf("ws://localhost:%d/ws", c.cfg.Controller.HostPort)
	}
	return transport.Dial(ctx, url, transport.Options{
		CommandTimeout: time.Duration(c.cfg.Controller.CommandTimeoutMs) * time.Millisecond,
		ResponseGrace:  responseGrace(c.cfg),
		Logger:         c.logger,
	})
}

// responseGrace covers the runner's interrupt-then-kill window on top of the
// transport's own allowance.
func responseGrace(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Tools.GracefulShutdownMs)*time.Millisecond + transport.DefaultResponseGrace
}

func (c *cli) exec(ctx context.Context, args []string) error {
	fs := c.flagSet("exec")
	url := fs.String("url", "", "runner WebSocket URL")
	cwd := fs.String("cwd", "", "working directory relative to the workspace root")
	timeout := fs.Duration("timeout", 0, "command timeout (default: sandbox policy)")
	env := fs.StringArrayP("env", "e", nil, "KEY=VALUE added to the command environment")
	fs.SetInterspersed(false)
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("exec needs a command")
	}

	cmd := protocol.ExecuteCommand{Command: strings.Join(fs.Args(), " ")}
	if *cwd != "" {
		cmd.WorkingDirectory = cwd
	}
	if *timeout > 0 {
		ms := timeout.Milliseconds()
		cmd.TimeoutMs = &ms
	}
	if len(*env) > 0 {
		cmd.Environment = make(map[string]string, len(*env))
		for _, kv := range *env {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
			}
			cmd.Environment[key] = value
		}
	}

	client, err := c.connect(ctx, *url)
	if err != nil {
		return err
	}
	defer client.Close()

	// Without --timeout the runner applies its sandbox default; send that
	// explicitly so the client waits long enough for a timed-out response.
	if cmd.TimeoutMs == nil {
		info, err := client.GetWorkspaceInfo(ctx)
		if err != nil {
			return err
		}
		if secs := info.Limits.DefaultCommandTimeoutSeconds; secs > 0 {
			ms := int64(secs) * 1000
			cmd.TimeoutMs = &ms
		}
	}

	resp, err := client.ExecuteCommand(ctx, cmd, func(out protocol.StreamingOutput) {
		if out.OutputType == protocol.Stderr {
			fmt.Fprint(c.stderr, out.Content)
			return
		}
		fmt.Fprint(c.stdout, out.Content)
	})
	if err != nil {
		return err
	}
	if resp.IsOutputTruncated {
		fmt.Fprintln(c.stderr, "[output truncated]")
	}
	if resp.TimedOut {
		fmt.Fprintf(c.stderr, "[timed out after %s]\n", time.Duration(resp.DurationMs)*time.Millisecond)
	}
	if resp.ExitCode != 0 {
		return &exitError{code: resp.ExitCode}
	}
	return nil
}

func (c *cli) explore(ctx context.Context, args []string) error {
	fs := c.flagSet("explore")
	url := fs.String("url", "", "runner WebSocket URL")
	recursive := fs.BoolP("recursive", "r", false, "descend into subdirectories")
	depth := fs.Int("depth", -1, "levels below the listed directory when recursive (-1: unlimited)")
	excludes := fs.StringSlice("exclude", nil, "gitignore-style patterns to skip")
	long := fs.BoolP("long", "l", false, "show permissions, size and modification time")
	if err := c.parse(fs, args); err != nil {
		return err
	}

	cmd := protocol.ExploreFiles{Path: ".", ExcludePatterns: *excludes}
	if fs.NArg() > 0 {
		cmd.Path = fs.Arg(0)
	}
	if *recursive {
		cmd.Recursive = recursive
		if *depth >= 0 {
			cmd.MaxDepth = depth
		}
	}
	if *long {
		cmd.ReturnMetadata = long
	}

	client, err := c.connect(ctx, *url)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ExploreFiles(ctx, cmd)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	for _, e := range resp.Entries {
		name := e.Path
		if e.IsDirectory {
			name += "/"
		}
		if !*long {
			fmt.Fprintln(tw, name)
			continue
		}
		perms, size, modified := "-", "-", "-"
		if e.Permissions != nil {
			perms = *e.Permissions
		}
		if e.Size != nil {
			size = fmt.Sprint(*e.Size)
		}
		if e.LastModified != nil {
			modified = time.UnixMilli(*e.LastModified).Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", perms, size, modified, name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if resp.IsTruncated {
		fmt.Fprintf(c.stderr, "[showing %d of %d entries]\n", len(resp.Entries), resp.TotalFound)
	}
	return nil
}

func (c *cli) read(ctx context.Context, args []string) error {
	fs := c.flagSet("read")
	url := fs.String("url", "", "runner WebSocket URL")
	start := fs.Int("start", 0, "first line (1-based)")
	end := fs.Int("end", 0, "last line, inclusive")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("read needs exactly one path")
	}

	cmd := protocol.ReadFile{Path: fs.Arg(0)}
	if *start > 0 {
		cmd.StartLine = start
	}
	if *end > 0 {
		cmd.EndLine = end
	}

	client, err := c.connect(ctx, *url)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ReadFile(ctx, cmd)
	if err != nil {
		return err
	}
	fmt.Fprint(c.stdout, resp.Content)
	if resp.Content != "" && !strings.HasSuffix(resp.Content, "\n") {
		fmt.Fprintln(c.stdout)
	}
	return nil
}

func (c *cli) search(ctx context.Context, args []string) error {
	fs := c.flagSet("search")
	url := fs.String("url", "", "runner WebSocket URL")
	regex := fs.Bool("regex", false, "treat the query as a regular expression")
	contextLines := fs.IntP("context", "C", 0, "lines of context around each match")
	excludes := fs.StringSlice("exclude", nil, "gitignore-style patterns to skip")
	if err := c.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("search needs a query")
	}

	cmd := protocol.SearchFiles{
		Query:           fs.Arg(0),
		Paths:           []string{"."},
		SearchType:      protocol.SearchLiteral,
		ExcludePatterns: *excludes,
	}
	if fs.NArg() > 1 {
		cmd.Paths = fs.Args()[1:]
	}
	if *regex {
		cmd.SearchType = protocol.SearchRegex
	}
	if *contextLines > 0 {
		cmd.ContextLines = contextLines
	}

	client, err := c.connect(ctx, *url)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.SearchFiles(ctx, cmd)
	if err != nil {
		return err
	}
	for _, m := range resp.Matches {
		fmt.Fprintf(c.stdout, "%s:%d:%s\n", m.Path, m.Line, m.MatchText)
	}
	if resp.IsTruncated {
		fmt.Fprintf(c.stderr, "[showing %d of %d matches]\n", len(resp.Matches), resp.TotalMatches)
	}
	return nil
}

func (c *cli) info(ctx context.Context, args []string) error {
	fs := c.flagSet("info")
	url := fs.String("url", "", "runner WebSocket URL")
	if err := c.parse(fs, args); err != nil {
		return err
	}

	client, err := c.connect(ctx, *url)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.GetWorkspaceInfo(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
