// Package schedule runs the collection once per weekday at a fixed hour.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// WeekdaySpec returns the cron spec for Monday to Friday at hour:00.
func WeekdaySpec(hour int) string {
	return fmt.Sprintf("0 %d * * 1-5", hour)
}

// Next returns the first weekday run time strictly after from, in loc.
func Next(hour int, loc *time.Location, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(WeekdaySpec(hour))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule: %w", err)
	}
	return sched.Next(from.In(loc)), nil
}

// Scheduler triggers a job on the weekday schedule. A run still in progress
// when the next one is due causes that next run to be skipped.
type Scheduler struct {
	hour   int
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a Scheduler firing at hour:00 in loc.
func New(hour int, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		hour: hour,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Run schedules job and blocks until ctx is done, then waits for a running job to return.
func (s *Scheduler) Run(ctx context.Context, job func(ctx context.Context)) error {
	id, err := s.cron.AddFunc(WeekdaySpec(s.hour), func() { job(ctx) })
	if err != nil {
		return fmt.Errorf("add schedule: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"spec", WeekdaySpec(s.hour),
		"next_run", s.cron.Entry(id).Next,
	)

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
