package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ned/internal/command"
	"github.com/mattjoyce/ned/internal/config"
	"github.com/mattjoyce/ned/internal/dispatch"
	"github.com/mattjoyce/ned/internal/executor"
	"github.com/mattjoyce/ned/internal/listener"
	"github.com/mattjoyce/ned/internal/log"
	"github.com/mattjoyce/ned/internal/niri"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	// A valid listener list always has an even number of arguments, so an
	// option is only recognised as the first token of an odd-length list.
	if len(args)%2 == 1 {
		switch args[0] {
		case "--help", "-h":
			printUsage(stdout)
			return 0
		case "--version":
			return runVersion(args[1:], stdout, stderr)
		case "--check":
			return runCheck(args[1:], getenv, stdout, stderr)
		}
	}
	return runStart(args, getenv, stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `ned - run commands on niri events

%s

Each REGEX is matched against the name of every niri event (for example
WindowFocusChanged or WorkspaceActivated). For every match COMMAND runs with
the event JSON on stdin.

COMMAND forms:
  prog                 run prog with no arguments
  prog, arg1, arg2     run prog with exact arguments (no spaces allowed)
  any shell string     run with sh -c

Options (first argument only, never part of a REGEX COMMAND pair):
  --check REGEX COMMAND ...   validate listeners and print them as YAML
  --version                   print version information
  -h, --help                  show this help

Environment:
  %-22s niri IPC socket (set by niri)
  %-22s debug, info, warn, error (default info)
  %-22s text or json (default text)
  %-22s concurrent command limit (default %d)
  %-22s per-command timeout (default %s)
  %-22s SIGTERM to SIGKILL delay on timeout (default 0)
`,
		listener.Usage,
		config.EnvSocket,
		config.EnvLogLevel,
		config.EnvLogFormat,
		config.EnvMaxTasks, config.DefaultMaxConcurrentTasks,
		config.EnvCommandTimeout, config.DefaultCommandTimeout,
		config.EnvTerminationGrace,
	)
}

func runVersion(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Usage: ned --version")
		return 1
	}

	v := strings.TrimSpace(version)
	if v == "" {
		v = "0.0.0-dev"
	}

	fmt.Fprintf(stdout, "ned %s\n", v)
	fmt.Fprintf(stdout, "commit: %s\n", gitCommit)
	fmt.Fprintf(stdout, "built_at: %s\n", buildDate)
	return 0
}

// checkReport is the YAML document printed by --check.
type checkReport struct {
	Fingerprint        string         `yaml:"fingerprint"`
	MaxConcurrentTasks int            `yaml:"max_concurrent_tasks"`
	CommandTimeout     string         `yaml:"command_timeout"`
	Listeners          []checkedEntry `yaml:"listeners"`
}

type checkedEntry struct {
	Pattern string   `yaml:"pattern"`
	Kind    string   `yaml:"kind"`
	Program string   `yaml:"program,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Command string   `yaml:"command,omitempty"`
}

func runCheck(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := config.FromEnv(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "ned: invalid configuration: %v\n", err)
		return 1
	}

	listeners, err := listener.Compile(args)
	if err != nil {
		fmt.Fprintf(stderr, "ned: %v\n", err)
		return 1
	}

	report := checkReport{
		Fingerprint:        listener.Fingerprint(listeners),
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		CommandTimeout:     cfg.CommandTimeout.String(),
	}
	for _, l := range listeners {
		entry := checkedEntry{Pattern: l.Pattern}
		switch c := l.Command.(type) {
		case command.Exec:
			entry.Kind = "exec"
			entry.Program = c.Program
			entry.Args = c.Args
		case command.Shell:
			entry.Kind = "shell"
			entry.Command = c.Command
		}
		report.Listeners = append(report.Listeners, entry)
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(stderr, "ned: render listeners: %v\n", err)
		return 1
	}
	if err := enc.Close(); err != nil {
		fmt.Fprintf(stderr, "ned: render listeners: %v\n", err)
		return 1
	}
	return 0
}

func runStart(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := config.FromEnv(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "ned: invalid configuration: %v\n", err)
		return 1
	}

	logger := log.Setup(stderr, cfg.LogLevel, cfg.LogFormat)

	listeners, err := listener.Compile(args)
	if err != nil {
		fmt.Fprintf(stderr, "ned: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sock, err := niri.Connect(ctx, cfg.SocketPath)
	if err != nil {
		fmt.Fprintf(stderr, "ned: %v\n", err)
		return 1
	}
	defer sock.Close()

	// Closing the socket is what unblocks a pending ReadEvent on shutdown.
	stopClose := context.AfterFunc(ctx, func() { _ = sock.Close() })
	defer stopClose()

	if err := sock.Subscribe(ctx); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(stderr, "ned: interrupted while waiting for niri")
			return 1
		}
		fmt.Fprintf(stderr, "ned: %v\n", err)
		return 1
	}

	runner := executor.New(executor.Options{
		Timeout:          cfg.CommandTimeout,
		TerminationGrace: cfg.TerminationGrace,
		Stdout:           stdout,
		Stderr:           stderr,
		Logger:           log.WithComponent("executor"),
	})
	d := dispatch.New(listeners, runner, dispatch.Options{
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		Logger:             log.WithComponent("dispatch"),
	})

	logger.Info("ned started",
		"version", version,
		"listeners", len(listeners),
		"fingerprint", listener.Fingerprint(listeners),
		"command_timeout", cfg.CommandTimeout,
	)

	err = d.Run(ctx, sock)

	logger.Debug("waiting for running commands")
	d.Wait()

	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("shutting down")
		return 0
	case err != nil:
		fmt.Fprintf(stderr, "ned: %v\n", err)
		return 1
	default:
		// niri went away; exit non-zero so a supervisor restarts us.
		fmt.Fprintln(stderr, "ned: event stream closed")
		return 1
	}
}
