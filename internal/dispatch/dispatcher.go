package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mattjoyce/ned/internal/command"
	"github.com/mattjoyce/ned/internal/event"
	"github.com/mattjoyce/ned/internal/executor"
	"github.com/mattjoyce/ned/internal/listener"
	"github.com/mattjoyce/ned/internal/log"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/ned/internal/dispatch Source,Runner

// DefaultMaxConcurrentTasks is the task capacity used when Options leaves it unset.
const DefaultMaxConcurrentTasks = 8

// Source yields decoded events one at a time.
type Source interface {
	// ReadEvent blocks until the next event. It returns io.EOF once the
	// source is closed; any other error is reported and reading continues.
	ReadEvent() (event.Event, error)
}

// Runner executes a prepared command with the event payload on stdin.
type Runner interface {
	Run(ctx context.Context, cmd command.Prepared, payload []byte) error
}

// Options configures a Dispatcher.
type Options struct {
	MaxConcurrentTasks int
	Logger             *slog.Logger
}

// Dispatcher matches events against listeners and launches a task per match.
type Dispatcher struct {
	listeners []listener.Listener
	runner    Runner
	capacity  int64
	sem       *semaphore.Weighted
	tasks     sync.WaitGroup
	logger    *slog.Logger
}

// New creates a Dispatcher. listeners must not be modified afterwards.
func New(listeners []listener.Listener, runner Runner, opts Options) *Dispatcher {
	capacity := opts.MaxConcurrentTasks
	if capacity <= 0 {
		capacity = DefaultMaxConcurrentTasks
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("dispatch")
	}

	return &Dispatcher{
		listeners: listeners,
		runner:    runner,
		capacity:  int64(capacity),
		sem:       semaphore.NewWeighted(int64(capacity)),
		logger:    logger,
	}
}

// Run reads events from src until it is closed or ctx is cancelled.
//
// The loop never waits for task capacity: a match that finds every permit
// taken is dropped with a warning. Read and decode failures are logged and
// the loop moves on to the next event. Tasks already launched keep running
// after Run returns; use Wait to block on them.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	d.logger.Info("dispatch loop started", "listeners", len(d.listeners), "max_concurrent_tasks", d.capacity)
	defer d.logger.Info("dispatch loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := src.ReadEvent()
		if err != nil {
			// Shutdown closes the source; report the cancellation, not the close.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				d.logger.Info("event source closed")
				return nil
			}
			if errors.Is(err, event.ErrDecode) {
				d.logger.Error("failed to decode event", "error", err)
			} else {
				d.logger.Error("failed to read event", "error", err)
			}
			continue
		}

		d.dispatch(ctx, ev)
	}
}

// dispatch starts one task per listener matching ev, in declaration order.
func (d *Dispatcher) dispatch(ctx context.Context, ev event.Event) {
	// In-flight tasks outlive the read loop; only the executor timeout stops them.
	taskCtx := context.WithoutCancel(ctx)

	for _, l := range d.listeners {
		if !l.Matches(ev.Name) {
			continue
		}

		if !d.sem.TryAcquire(1) {
			d.logger.Warn("task limit reached, dropping event", "event", ev.Name, "pattern", l.Pattern)
			continue
		}

		d.tasks.Add(1)
		go d.runTask(taskCtx, l, ev)
	}
}

// runTask runs one command. The permit acquired by dispatch is released on
// every path out of here.
func (d *Dispatcher) runTask(ctx context.Context, l listener.Listener, ev event.Event) {
	defer d.tasks.Done()
	defer d.sem.Release(1)

	taskLogger := d.logger.With(
		slog.String("task_id", uuid.NewString()),
		slog.String("event", ev.Name),
		slog.String("command", l.Command.String()),
	)
	taskLogger.Debug("dispatching command", "pattern", l.Pattern)

	start := time.Now()
	err := d.runner.Run(ctx, l.Command, ev.Payload)
	duration := time.Since(start)

	switch {
	case err == nil:
		taskLogger.Debug("command finished", "duration", duration)
	case errors.Is(err, executor.ErrTimeout):
		taskLogger.Error("command timed out", "error", err, "duration", duration)
	default:
		taskLogger.Error("command failed", "error", err, "duration", duration)
	}
}

// Wait blocks until every launched task has finished.
func (d *Dispatcher) Wait() {
	d.tasks.Wait()
}
