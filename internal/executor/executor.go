package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/mattjoyce/ned/internal/command"
	"github.com/mattjoyce/ned/internal/log"
)

const (
	// DefaultTimeout bounds a single command run.
	DefaultTimeout = 5 * time.Second

	// waitDelay bounds how long Wait keeps copying output after the process
	// exits, in case a detached grandchild still holds the pipe.
	waitDelay = 1 * time.Second
)

var (
	// ErrSpawn is returned when the process could not be started.
	ErrSpawn = errors.New("failed to spawn command")

	// ErrWrite is returned when the payload could not be written to stdin.
	ErrWrite = errors.New("failed to write payload")

	// ErrWait is returned when waiting for the process failed for a reason
	// other than a non-zero exit status.
	ErrWait = errors.New("failed to wait for command")

	// ErrTimeout is returned when the command did not finish in time.
	ErrTimeout = errors.New("command timed out")
)

// Options configures an Executor. Zero values select the defaults.
type Options struct {
	Timeout time.Duration
	// TerminationGrace is the time between SIGTERM and SIGKILL for a timed-out
	// command. Zero sends SIGKILL straight away.
	TerminationGrace time.Duration
	Stdout           io.Writer
	Stderr           io.Writer
	// Shell runs command.Shell values as `<Shell> -c <command>`.
	Shell  string
	Logger *slog.Logger
}

// Executor runs prepared commands with an event payload on stdin.
type Executor struct {
	timeout time.Duration
	grace   time.Duration
	stdout  io.Writer
	stderr  io.Writer
	shell   string
	logger  *slog.Logger
}

// New creates an Executor.
func New(opts Options) *Executor {
	e := &Executor{
		timeout: opts.Timeout,
		grace:   opts.TerminationGrace,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		shell:   opts.Shell,
		logger:  opts.Logger,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.shell == "" {
		e.shell = "sh"
	}
	if e.logger == nil {
		e.logger = log.WithComponent("executor")
	}
	return e
}

// Timeout returns the per-run time limit.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run spawns prepared, writes payload and a newline to its stdin, closes
// stdin, and waits for the process to exit.
//
// A non-zero exit status is not an error. If the timeout expires first the
// process group is terminated and reaped before ErrTimeout is returned. A
// failed payload write does not stop the wait; it is reported alongside the
// wait outcome.
func (e *Executor) Run(ctx context.Context, prepared command.Prepared, payload []byte) error {
	// Don't use CommandContext - termination is handled here so the whole
	// process group goes, not just the direct child.
	cmd, err := e.build(prepared)
	if err != nil {
		return err
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %s: create stdin pipe: %v", ErrSpawn, prepared, err)
	}
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSpawn, prepared, err)
	}
	e.logger.Debug("spawned command", "command", prepared.String(), "pid", cmd.Process.Pid)

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- writePayload(stdin, payload)
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timer.C:
		e.terminate(cmd, waitErr)
		return fmt.Errorf("%w after %s: %s", ErrTimeout, e.timeout, prepared)

	case <-ctx.Done():
		e.terminate(cmd, waitErr)
		return fmt.Errorf("%s: %w", prepared, ctx.Err())

	case err := <-waitErr:
		var errs []error
		if werr := <-writeErr; werr != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrWrite, prepared, werr))
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				e.logger.Debug("command exited with non-zero status", "command", prepared.String(), "exit_code", exitErr.ExitCode())
			} else {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrWait, prepared, err))
			}
		}
		return errors.Join(errs...)
	}
}

func (e *Executor) build(prepared command.Prepared) (*exec.Cmd, error) {
	switch c := prepared.(type) {
	case command.Exec:
		return exec.Command(c.Program, c.Args...), nil
	case command.Shell:
		return exec.Command(e.shell, "-c", c.Command), nil
	default:
		return nil, fmt.Errorf("%w: unsupported command type %T", ErrSpawn, prepared)
	}
}

// terminate stops a process that overran its deadline and waits for it to be
// reaped. waitErr receives the result of cmd.Wait.
func (e *Executor) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	logger := e.logger.With("pid", cmd.Process.Pid)

	if e.grace > 0 {
		logger.Debug("sending SIGTERM to command")
		if err := signalTerminate(cmd.Process); err != nil {
			logger.Debug("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(e.grace)
		defer grace.Stop()

		select {
		case <-waitErr:
			return
		case <-grace.C:
			logger.Warn("command did not exit after SIGTERM, sending SIGKILL")
		}
	}

	if err := signalKill(cmd.Process); err != nil {
		logger.Debug("failed to send SIGKILL", "error", err)
	}
	<-waitErr
}

func writePayload(w io.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte{'\n'})
	return err
}
