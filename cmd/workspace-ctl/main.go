// Package main is the controller CLI: it launches a workspace runner
// container and sends it commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vim89/llm4s-sub012/internal/config"
	"github.com/vim89/llm4s-sub012/internal/logging"
)

const usage = `workspace-ctl controls a workspace runner container.

Usage:
  workspace-ctl <command> [flags] [args]

Commands:
  start     launch the container and keep it monitored until interrupted
  stop      stop and remove the container
  exec      run a shell command in the workspace
  explore   list a directory
  read      print a file
  search    search file contents
  info      print the workspace root, top-level structure and limits

Run "workspace-ctl <command> --help" for the flags of a command.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Using default configuration.\n")
		cfg = config.DefaultConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{cfg: cfg, stdout: os.Stdout, stderr: os.Stderr}
	err = c.dispatch(ctx, args[0], args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

// cli carries what every subcommand needs.
type cli struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
	logger *logging.Logger
}

func (c *cli) dispatch(ctx context.Context, name string, args []string) error {
	commands := map[string]func(context.Context, []string) error{
		"start":   c.start,
		"stop":    c.stop,
		"exec":    c.exec,
		"explore": c.explore,
		"read":    c.read,
		"search":  c.search,
		"info":    c.info,
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (run workspace-ctl --help)", name)
	}
	return cmd(ctx, args)
}

// flagSet returns a flag set with the flags shared by every subcommand.
func (c *cli) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("workspace-ctl "+name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.String("log-level", c.cfg.Log.Level, "log level: debug, info, warn, error")
	fs.IntP("port", "p", c.cfg.Controller.HostPort, "host port the runner is published on")
	return fs
}

// parse parses args and applies the shared flags to the config.
func (c *cli) parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if level, _ := fs.GetString("log-level"); level != "" {
		c.cfg.Log.Level = level
	}
	if port, _ := fs.GetInt("port"); port > 0 {
		c.cfg.Controller.HostPort = port
	}

	level, err := logging.ParseLevel(c.cfg.Log.Level)
	if err != nil {
		return err
	}
	c.logger = logging.New(logging.Config{Level: level, Output: c.stderr, JSON: c.cfg.Log.JSON})
	return nil
}
