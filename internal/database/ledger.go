package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/options-data/internal/config"
	"github.com/rickgao/options-data/internal/manifest"
)

// Schema statements, applied in order by EnsureSchema.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS collection_runs (
		run_id       UUID PRIMARY KEY,
		run_date     DATE NOT NULL,
		destination  TEXT NOT NULL,
		phase        TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ,
		artifact     TEXT,
		write_error  TEXT,
		succeeded    INTEGER NOT NULL,
		failed       INTEGER NOT NULL,
		contracts    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS collection_run_tickers (
		run_id       UUID NOT NULL REFERENCES collection_runs (run_id),
		ticker       TEXT NOT NULL,
		status       TEXT NOT NULL,
		contracts    INTEGER NOT NULL,
		attempts     INTEGER NOT NULL,
		error        TEXT,
		duration_ms  BIGINT NOT NULL,
		PRIMARY KEY (run_id, ticker)
	)`,
	`CREATE INDEX IF NOT EXISTS collection_runs_run_date_idx ON collection_runs (run_date)`,
}

// batcher is the subset of pgxpool.Pool used by the ledger.
type batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Ledger appends run manifests to the database.
type Ledger struct {
	db     batcher
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedger creates a Ledger on an existing pool.
func NewLedger(pool *pgxpool.Pool, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: pool, pool: pool, logger: logger}
}

// Open connects to the ledger database and ensures its schema.
func Open(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Ledger, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect ledger: %w", err)
	}

	l := NewLedger(pool, logger)
	if err := l.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying pool.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// Ping checks the database connection.
func (l *Ledger) Ping(ctx context.Context) error {
	if l.pool == nil {
		return errors.New("ledger has no pool")
	}
	return l.pool.Ping(ctx)
}

// EnsureSchema creates the ledger tables if they do not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	batch := &pgx.Batch{}
	for _, stmt := range schema {
		batch.Queue(stmt)
	}
	if _, err := l.exec(ctx, batch); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// RecordRun appends a finished run and its tickers.
func (l *Ledger) RecordRun(ctx context.Context, s manifest.Snapshot) error {
	start := time.Now()

	batch := RecordBatch(s)
	conflicts, err := l.exec(ctx, batch)
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.RunID, err)
	}

	l.logger.Debug("run recorded",
		"run_id", s.RunID,
		"rows", batch.Len(),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// RecordBatch builds the inserts for one run using ON CONFLICT DO NOTHING.
func RecordBatch(s manifest.Snapshot) *pgx.Batch {
	batch := &pgx.Batch{}

	var finishedAt *time.Time
	if !s.FinishedAt.IsZero() {
		finishedAt = &s.FinishedAt
	}

	batch.Queue(`
		INSERT INTO collection_runs (run_id, run_date, destination, phase, started_at, finished_at,
			artifact, write_error, succeeded, failed, contracts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO NOTHING
	`, s.RunID, s.Date, s.Destination, string(s.Phase), s.StartedAt, finishedAt,
		nullString(s.Artifact), nullString(s.WriteError), s.Succeeded, s.Failed, s.Contracts)

	for _, r := range s.Results {
		batch.Queue(`
			INSERT INTO collection_run_tickers (run_id, ticker, status, contracts, attempts, error, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (run_id, ticker) DO NOTHING
		`, s.RunID, r.Ticker, string(r.Status), r.Contracts, r.Attempts, nullString(r.Error), r.Duration.Milliseconds())
	}

	return batch
}

func (l *Ledger) exec(ctx context.Context, batch *pgx.Batch) (conflicts int, err error) {
	results := l.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		var ct pgconn.CommandTag
		ct, err = results.Exec()
		if err != nil {
			return conflicts, err
		}
		if ct.RowsAffected() == 0 && ct.Insert() {
			conflicts++
		}
	}
	return conflicts, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
