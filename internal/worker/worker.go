// Package worker runs the periodic maintenance jobs: republishing journaled
// events and purging old search tombstones.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

type Worker struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		// a run still in progress makes the next tick a no-op
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules job under a standard cron spec or a descriptor such as
// "@every 2s".
func (w *Worker) Add(spec, name string, job Job) error {
	_, err := w.cron.AddFunc(spec, func() {
		if err := job(w.ctx); err != nil {
			w.logger.Error("job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	w.logger.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Run starts the scheduler and blocks until ctx is canceled, then waits for
// running jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	w.cron.Start()

	<-ctx.Done()

	w.cancel()
	<-w.cron.Stop().Done()
	w.logger.Info("worker stopped")
	return nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
