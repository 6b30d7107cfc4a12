package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/options-data/internal/api"
	"github.com/rickgao/options-data/internal/auth"
	"github.com/rickgao/options-data/internal/collector"
	"github.com/rickgao/options-data/internal/config"
	"github.com/rickgao/options-data/internal/database"
	"github.com/rickgao/options-data/internal/metrics"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/notify"
	"github.com/rickgao/options-data/internal/pipeline"
	"github.com/rickgao/options-data/internal/schedule"
	"github.com/rickgao/options-data/internal/storage"
	"github.com/rickgao/options-data/internal/tickers"
	"github.com/rickgao/options-data/internal/version"
	"github.com/rickgao/options-data/internal/writer"
)

// collectOptions are the root command's flags.
type collectOptions struct {
	symbolFile  string
	symbol      string
	destination string
	date        string
	now         bool
	email       bool
	due         int
}

func (o collectOptions) validate() error {
	switch {
	case o.symbolFile == "" && o.symbol == "":
		return &model.ConfigError{Field: "symbol-file", Err: errors.New("one of -f/--symbol-file or -s/--option is required")}
	case o.symbolFile != "" && o.symbol != "":
		return &model.ConfigError{Field: "symbol-file", Err: errors.New("-f/--symbol-file and -s/--option are mutually exclusive")}
	}
	if o.date != "" {
		if !o.once() {
			return &model.ConfigError{Field: "date", Err: errors.New("-d/--date applies to a single run; use it with --now or -s")}
		}
		if _, err := time.Parse(model.DateLayout, o.date); err != nil {
			return &model.ConfigError{Field: "date", Err: fmt.Errorf("want YYYY-MM-DD: %w", err)}
		}
	}
	return nil
}

// once reports whether the command runs a single batch instead of the daemon.
func (o collectOptions) once() bool {
	return o.now || o.symbol != ""
}

func (o collectOptions) tickers() ([]string, error) {
	if o.symbol != "" {
		return tickers.Single(o.symbol)
	}
	return tickers.Load(o.symbolFile)
}

// loadConfig resolves the configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command, path string, opts collectOptions) (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(path)
	if err != nil {
		return nil, &model.ConfigError{Field: "config", Err: err}
	}

	if opts.destination != "" {
		cfg.Storage.Destination = opts.destination
	}
	if opts.email {
		cfg.Email.Enabled = true
	}
	if cmd.Flags().Changed("due") {
		cfg.Schedule.DueHour = opts.due
	}

	if err := cfg.Validate(); err != nil {
		return nil, &model.ConfigError{Field: "config", Err: err}
	}
	return cfg, nil
}

func runCollect(cmd *cobra.Command, global globalOptions, opts collectOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, global.configPath, opts)
	if err != nil {
		return err
	}

	logger := slog.Default()
	logger.Info("starting collect",
		"version", version.Version,
		"commit", version.Commit,
		"config", global.configPath,
		"destination", cfg.Storage.Destination,
	)

	// Tickers are read before anything touches the network.
	list, err := opts.tickers()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cfg, opts.date, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.once() {
		return a.runOnce(ctx, list)
	}
	return a.daemon(ctx, opts.symbolFile)
}

// app holds the wired components of one collect process.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	runner  *pipeline.Runner
	metrics *metrics.Metrics
	ledger  *database.Ledger
	health  *healthState
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, date string, logger *slog.Logger) (*app, error) {
	loc, err := cfg.Collector.Location()
	if err != nil {
		return nil, &model.ConfigError{Field: "collector.timezone", Err: err}
	}

	tokens, err := tokenSource(cfg.Auth)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(
		cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.Burst),
		api.WithTokenSource(tokens),
	)

	col := collector.New(collector.Config{
		Concurrency: cfg.Collector.Concurrency,
		Attempts:    cfg.Collector.Attempts,
		RetryDelay:  cfg.Collector.RetryDelay,
		RunTimeout:  cfg.Collector.RunTimeout,
	}, client, logger)

	store, err := storage.Open(ctx, cfg.Storage.Destination, storage.S3Options{
		Region:      cfg.Storage.Region,
		EndpointURL: cfg.Storage.EndpointURL,
	})
	if err != nil {
		return nil, &model.ConfigError{Field: "storage.destination", Err: err}
	}

	w, err := writer.NewSnapshotWriter(writer.Config{
		Overwrite:    writer.OverwritePolicy(cfg.Storage.Overwrite),
		Compression:  cfg.Storage.Compression,
		SkipManifest: cfg.Storage.SkipManifest,
	}, store, logger)
	if err != nil {
		return nil, &model.ConfigError{Field: "storage", Err: err}
	}

	a := &app{
		cfg:     cfg,
		loc:     loc,
		metrics: metrics.New(),
		health:  newHealthState(),
		logger:  logger,
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithObserver(a.metrics),
	}

	if cfg.Email.Enabled {
		opts = append(opts, pipeline.WithNotifier(notify.NewEmail(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			User:     cfg.Email.User,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}, notify.WithLogger(logger))))
	}

	if cfg.Database.Ledger.Enabled {
		logger.Info("connecting to run ledger",
			"host", cfg.Database.Ledger.Host,
			"database", cfg.Database.Ledger.Name,
		)
		ledger, err := database.Open(ctx, cfg.Database.Ledger, logger)
		if err != nil {
			// Collecting goes on without the ledger.
			logger.Warn("run ledger unavailable", "error", err)
		} else {
			a.ledger = ledger
			opts = append(opts, pipeline.WithRecorder(ledger))
		}
	}

	a.runner = pipeline.New(pipeline.Config{
		Destination: cfg.Storage.Destination,
		Date:        date,
		Location:    loc,
	}, col, w, opts...)

	return a, nil
}

func tokenSource(cfg config.AuthConfig) (auth.TokenSource, error) {
	if cfg.Token != "" {
		return auth.Static(cfg.Token), nil
	}
	ts, err := auth.NewRefreshing(auth.OAuthConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     cfg.OAuth.TokenURL,
		RefreshToken: cfg.OAuth.RefreshToken,
	})
	if err != nil {
		return nil, &model.ConfigError{Field: "auth.oauth", Err: err}
	}
	return ts, nil
}

func (a *app) close() {
	if a.ledger != nil {
		a.ledger.Close()
	}
}

// runOnce collects a single batch and maps the outcome to an exit code.
func (a *app) runOnce(ctx context.Context, list []string) error {
	m, err := a.runner.Run(ctx, list)

	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if perr := a.metrics.Push(pushCtx, url, a.cfg.Metrics.Job); perr != nil {
			a.logger.Warn("metrics push failed", "error", perr)
		}
	}

	if code := pipeline.ExitCode(m, err); code != pipeline.ExitOK {
		return &exitError{code: code, err: err}
	}
	return nil
}

// daemon collects every weekday at the due hour until ctx is canceled. The
// ticker file is re-read before each run.
func (a *app) daemon(ctx context.Context, symbolFile string) error {
	hour := a.cfg.Schedule.DueHour

	var db pinger
	if a.ledger != nil {
		db = a.ledger
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler:           createHealthHandler(a.health, db, a.metrics.Handler(), a.cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("starting health server", "port", a.cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("health server error", "error", err)
		}
	}()

	a.updateNext()
	a.logger.Info("collect daemon running",
		"due_hour", hour,
		"timezone", a.loc.String(),
		"next_run", a.health.nextRun(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", a.cfg.Metrics.Port),
	)

	sched := schedule.New(hour, a.loc, a.logger)
	err := sched.Run(ctx, func(ctx context.Context) {
		defer a.updateNext()

		list, err := tickers.Load(symbolFile)
		if err != nil {
			a.logger.Error("failed to load tickers", "error", err)
			return
		}

		m, err := a.runner.Run(ctx, list)
		if m != nil {
			a.health.record(m.Snapshot())
		}
		if err != nil {
			a.logger.Error("run failed",
				"exit_code", pipeline.ExitCode(m, err),
				"error", err,
			)
		}
	})

	a.logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	a.logger.Info("collect stopped")
	return err
}

func (a *app) updateNext() {
	next, err := schedule.Next(a.cfg.Schedule.DueHour, a.loc, time.Now())
	if err != nil {
		a.logger.Warn("failed to compute next run", "error", err)
		return
	}
	a.health.setNext(next)
}
