// Package main runs the workspace runner: the process inside the container
// that serves filesystem and shell commands to the controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/liveness"
	"github.com/vim89/llm4s-sub012/internal/logging"
	"github.com/vim89/llm4s-sub012/internal/runner"
	"github.com/vim89/llm4s-sub012/internal/sandbox"
	"github.com/vim89/llm4s-sub012/internal/tool/workspace"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Using default configuration.\n")
		cfg = config.DefaultConfig()
	}

	if err := applyFlags(args, cfg); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg, logger, func() { os.Exit(1) })
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// applyFlags overrides cfg with any flags given on the command line.
func applyFlags(args []string, cfg *config.Config) error {
	flagSet := pflag.NewFlagSet("workspace-runner", pflag.ContinueOnError)
	port := flagSet.IntP("port", "p", cfg.Runner.Port, "port to listen on")
	root := flagSet.StringP("workspace", "w", cfg.Runner.WorkspaceRoot, "workspace root directory")
	profile := flagSet.String("profile", cfg.Runner.SandboxProfile, `sandbox profile: "permissive" or "locked"`)
	timeout := flagSet.Duration("heartbeat-timeout", time.Duration(cfg.Runner.HeartbeatTimeoutMs)*time.Millisecond, "exit when the controller is silent this long")
	level := flagSet.String("log-level", cfg.Log.Level, "log level: debug, info, warn, error")
	jsonLogs := flagSet.Bool("log-json", cfg.Log.JSON, "write logs as JSON")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	cfg.Runner.Port = *port
	cfg.Runner.WorkspaceRoot = *root
	cfg.Runner.SandboxProfile = *profile
	cfg.Runner.HeartbeatTimeoutMs = int(timeout.Milliseconds())
	cfg.Log.Level = *level
	cfg.Log.JSON = *jsonLogs
	return nil
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{Level: level, JSON: cfg.JSON}), nil
}

// newServer wires the sandbox policy, workspace capability and watchdog into
// a runner server. exit is called when the watchdog expires.
func newServer(cfg *config.Config, logger *logging.Logger, exit func()) (*runner.Server, error) {
	policy, err := sandbox.FromProfileName(cfg.Runner.SandboxProfile)
	if err != nil {
		return nil, err
	}

	agent, err := workspace.NewAgent(cfg.Runner.WorkspaceRoot, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}

	watchdog := liveness.NewWatchdog(liveness.WatchdogOptions{
		Timeout:       time.Duration(cfg.Runner.HeartbeatTimeoutMs) * time.Millisecond,
		CheckInterval: time.Duration(cfg.Runner.WatchdogCheckIntervalMs) * time.Millisecond,
		OnExpire: func(silence time.Duration) {
			logger.Error("controller unresponsive, exiting", "silence", silence)
			exit()
		},
		Logger: logger,
	})

	logger.Info("starting runner",
		"workspace", agent.Root(),
		"profile", cfg.Runner.SandboxProfile,
		"shell_allowed", policy.ShellAllowed)

	return runner.New(runner.Options{
		Config:     cfg,
		Sandbox:    policy,
		Capability: agent,
		Watchdog:   watchdog,
		Logger:     logger,
	})
}
