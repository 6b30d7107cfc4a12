package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/options-data/internal/manifest"
	"github.com/rickgao/options-data/internal/model"
)

// ChainFetcher fetches the full option chain of one underlying.
type ChainFetcher interface {
	GetOptionChain(ctx context.Context, symbol string) (*model.Chain, error)
}

// ChainFetcherFunc is a function adapter for ChainFetcher.
type ChainFetcherFunc func(ctx context.Context, symbol string) (*model.Chain, error)

func (f ChainFetcherFunc) GetOptionChain(ctx context.Context, symbol string) (*model.Chain, error) {
	return f(ctx, symbol)
}

// Config holds collector configuration.
type Config struct {
	Concurrency int           // Max tickers fetched at once (default: 4)
	Attempts    int           // Fetch attempts per ticker (default: 3)
	RetryDelay  time.Duration // Delay before the second attempt, doubled after (default: 3s)
	RunTimeout  time.Duration // Deadline for the whole fetch stage, 0 for none (default: 30m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Attempts:    3,
		RetryDelay:  3 * time.Second,
		RunTimeout:  30 * time.Minute,
	}
}

// Collector fetches chains for a ticker list and records the outcomes.
type Collector struct {
	cfg     Config
	fetcher ChainFetcher
	logger  *slog.Logger
}

// New creates a new Collector.
func New(cfg Config, fetcher ChainFetcher, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Collector{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Collect fetches every ticker and records each outcome in m. It returns the
// successfully fetched chains in ticker order. A ticker that exhausts its
// attempts, or is still pending at the run timeout, is recorded as failed.
func (c *Collector) Collect(ctx context.Context, tickers []string, m *manifest.Manifest) []*model.Chain {
	start := time.Now()

	if c.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RunTimeout)
		defer cancel()
	}

	chains := make([]*model.Chain, len(tickers))
	var succeeded, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	for i, ticker := range tickers {
		g.Go(func() error {
			tickerStart := time.Now()
			chain, attempts, err := c.fetchWithRetry(ctx, ticker)

			result := manifest.TickerResult{
				Ticker:   ticker,
				Attempts: attempts,
				Duration: time.Since(tickerStart),
			}
			if err != nil {
				ferr := &model.FetchError{Ticker: ticker, Attempts: attempts, Err: err}
				result.Status = manifest.StatusFailed
				result.Error = ferr.Error()
				failed.Add(1)
				c.logger.Warn("ticker fetch failed",
					"ticker", ticker,
					"attempts", attempts,
					"error", err,
				)
			} else {
				result.Status = manifest.StatusSucceeded
				result.Contracts = chain.Len()
				chains[i] = chain
				succeeded.Add(1)
				c.logger.Debug("ticker fetched",
					"ticker", ticker,
					"contracts", chain.Len(),
					"attempts", attempts,
				)
			}

			if err := m.Record(result); err != nil {
				c.logger.Error("failed to record ticker result", "ticker", ticker, "error", err)
			}
			return nil
		})
	}

	_ = g.Wait()

	out := make([]*model.Chain, 0, succeeded.Load())
	for _, chain := range chains {
		if chain != nil {
			out = append(out, chain)
		}
	}

	c.logger.Info("fetch stage complete",
		"tickers", len(tickers),
		"succeeded", succeeded.Load(),
		"failed", failed.Load(),
		"duration", time.Since(start),
	)

	return out
}

// fetchWithRetry returns the chain, the number of attempts made, and the last error.
func (c *Collector) fetchWithRetry(ctx context.Context, ticker string) (*model.Chain, int, error) {
	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return nil, attempt - 1, lastErr
		}

		chain, err := c.fetcher.GetOptionChain(ctx, ticker)
		if err == nil {
			if chain == nil {
				chain = &model.Chain{Underlying: ticker, FetchedAt: time.Now().UTC()}
			}
			return chain, attempt, nil
		}
		lastErr = err

		if attempt == c.cfg.Attempts {
			break
		}

		c.logger.Info("retrying ticker",
			"ticker", ticker,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, attempt, lastErr
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, c.cfg.Attempts, lastErr
}
