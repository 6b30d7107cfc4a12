package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/rickgao/options-data/internal/manifest"
)

const namespace = "options_collect"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Metrics holds the collector's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	tickers          *prometheus.CounterVec
	attempts         prometheus.Histogram
	tickerDuration   prometheus.Histogram
	contracts        prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
	lastRunDuration  prometheus.Gauge
	lastRunSucceeded prometheus.Gauge
}

// New creates and registers the metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Collection runs by outcome.",
		}, []string{"outcome"}),
		tickers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickers_total",
			Help:      "Tickers processed by status.",
		}, []string{"status"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ticker_attempts",
			Help:      "Fetch attempts per ticker.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		tickerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ticker_duration_seconds",
			Help:      "Time to fetch one ticker's chain, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		contracts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_contracts",
			Help:      "Contracts written by the last run.",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRunSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run produced an artifact, else 0.",
		}),
	}

	m.registry.MustRegister(
		m.runs,
		m.tickers,
		m.attempts,
		m.tickerDuration,
		m.contracts,
		m.lastRunTimestamp,
		m.lastRunDuration,
		m.lastRunSucceeded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome classifies a finished run.
func Outcome(s manifest.Snapshot) string {
	switch {
	case s.Phase == manifest.PhaseFailed || s.Succeeded == 0 || s.WriteError != "":
		return OutcomeFailed
	case s.Failed > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(s manifest.Snapshot) {
	outcome := Outcome(s)
	m.runs.WithLabelValues(outcome).Inc()

	for _, r := range s.Results {
		m.tickers.WithLabelValues(string(r.Status)).Inc()
		m.attempts.Observe(float64(r.Attempts))
		m.tickerDuration.Observe(r.Duration.Seconds())
	}

	m.contracts.Set(float64(s.Contracts))
	if !s.FinishedAt.IsZero() {
		m.lastRunTimestamp.Set(float64(s.FinishedAt.Unix()))
		m.lastRunDuration.Set(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}
	if outcome == OutcomeFailed {
		m.lastRunSucceeded.Set(0)
	} else {
		m.lastRunSucceeded.Set(1)
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the current metrics to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
