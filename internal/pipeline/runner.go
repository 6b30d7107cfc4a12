// Package pipeline drives one collection run from ticker list to stored
// artifact and summary.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/options-data/internal/manifest"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/notify"
)

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// postRunTimeout bounds the side effects that follow the run itself.
const postRunTimeout = 30 * time.Second

// ErrNoSuccess is returned when no ticker could be fetched.
var ErrNoSuccess = errors.New("no ticker succeeded")

// Collector fetches chains and records per-ticker outcomes in a manifest.
type Collector interface {
	Collect(ctx context.Context, tickers []string, m *manifest.Manifest) []*model.Chain
}

// Writer stores a run's artifact and its manifest sidecar.
type Writer interface {
	Write(ctx context.Context, m *manifest.Manifest, chains []*model.Chain) (string, error)
	WriteManifest(ctx context.Context, m *manifest.Manifest) error
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, s manifest.Snapshot) error
}

// Observer receives finished runs, typically for metrics.
type Observer interface {
	ObserveRun(s manifest.Snapshot)
}

// Config holds runner configuration.
type Config struct {
	Destination string         // URI recorded in the manifest
	Date        string         // fixed run date (YYYY-MM-DD); empty uses today in Location
	Location    *time.Location // zone deciding "today" (default: UTC)
}

// Runner executes collection runs.
type Runner struct {
	cfg       Config
	collector Collector
	writer    Writer
	notifier  notify.Notifier
	recorder  Recorder
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier sets the summary notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithRecorder sets the run ledger.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithObserver sets the run observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithClock overrides the clock used to pick the run date.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New creates a Runner.
func New(cfg Config, collector Collector, writer Writer, opts ...Option) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	r := &Runner{
		cfg:       cfg,
		collector: collector,
		writer:    writer,
		notifier:  notify.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunDate returns the date the next run is stamped with.
func (r *Runner) RunDate() string {
	if r.cfg.Date != "" {
		return r.cfg.Date
	}
	return r.now().In(r.cfg.Location).Format(model.DateLayout)
}

// Run collects the tickers, writes the artifact and sends the summary.
//
// The returned manifest is nil only when the run could not start. A notify
// failure is logged and never returned.
func (r *Runner) Run(ctx context.Context, tickers []string) (*manifest.Manifest, error) {
	if len(tickers) == 0 {
		return nil, &model.ConfigError{Field: "tickers", Err: errors.New("ticker list is empty")}
	}

	m := manifest.New(r.RunDate(), r.cfg.Destination, tickers)
	logger := r.logger.With("run_id", m.ShortID(), "date", m.Date())
	logger.Info("run started", "tickers", len(tickers), "destination", m.Destination())

	m.SetPhase(manifest.PhaseFetching)
	chains := r.collector.Collect(ctx, tickers, m)

	var runErr error
	if len(m.Succeeded()) == 0 {
		runErr = ErrNoSuccess
		logger.Error("no ticker succeeded, skipping write", "failed", len(m.Failed()))
	} else {
		m.SetPhase(manifest.PhaseWriting)
		if _, err := r.writer.Write(ctx, m, chains); err != nil {
			m.SetWriteError(err)
			runErr = err
			logger.Error("snapshot write failed", "error", err)
		}
	}

	post, cancel := context.WithTimeout(context.WithoutCancel(ctx), postRunTimeout)
	defer cancel()

	m.SetPhase(manifest.PhaseNotifying)
	if err := r.notifier.Notify(post, m.Snapshot()); err != nil {
		logger.Warn("notification failed", "error", err)
	}

	if runErr != nil {
		m.Finalize(manifest.PhaseFailed)
	} else {
		m.Finalize(manifest.PhaseDone)
	}

	r.finish(post, logger, m)
	return m, runErr
}

// finish runs the best-effort steps that follow a finalized manifest.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, m *manifest.Manifest) {
	if err := r.writer.WriteManifest(ctx, m); err != nil {
		logger.Warn("manifest sidecar write failed", "error", err)
	}

	s := m.Snapshot()
	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, s); err != nil {
			logger.Warn("run ledger write failed", "error", err)
		}
	}
	if r.observer != nil {
		r.observer.ObserveRun(s)
	}

	logger.Info("run finished",
		"phase", s.Phase,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"contracts", s.Contracts,
		"artifact", s.Artifact,
		"duration", s.FinishedAt.Sub(s.StartedAt),
	)
}

// ExitCode maps a run outcome to a process exit code: 0 when at least one
// ticker succeeded and the artifact was stored, 2 for configuration errors,
// 1 otherwise.
func ExitCode(m *manifest.Manifest, err error) int {
	var cfgErr *model.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	var notifyErr *model.NotifyError
	if err != nil && !errors.As(err, &notifyErr) {
		return ExitFailure
	}
	if m == nil || len(m.Succeeded()) == 0 {
		return ExitFailure
	}
	return ExitOK
}
