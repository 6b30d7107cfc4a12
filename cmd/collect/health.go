package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/options-data/internal/manifest"
	"github.com/rickgao/options-data/internal/metrics"
)

// pinger is implemented by the run ledger.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthState tracks the daemon's schedule and its last finished run.
type healthState struct {
	mu      sync.Mutex
	started time.Time
	next    time.Time
	last    *manifest.Snapshot
}

func newHealthState() *healthState {
	return &healthState{started: time.Now()}
}

func (h *healthState) record(s manifest.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &s
}

func (h *healthState) setNext(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = t
}

func (h *healthState) nextRun() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

func (h *healthState) lastRun() (manifest.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return manifest.Snapshot{}, false
	}
	return *h.last, true
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
// db may be nil when the run ledger is disabled.
func createHealthHandler(state *healthState, db pinger, metricsHandler http.Handler, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check run ledger
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["ledger"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["ledger"] = "connected"
			}
		}

		scheduler := map[string]interface{}{
			"uptime_seconds": int(time.Since(state.started).Seconds()),
		}
		if next := state.nextRun(); !next.IsZero() {
			scheduler["next_run"] = next
		}
		health.Components["scheduler"] = scheduler

		// Check last run
		if last, ok := state.lastRun(); ok {
			outcome := metrics.Outcome(last)
			health.Components["last_run"] = map[string]interface{}{
				"run_id":      last.RunID,
				"date":        last.Date,
				"outcome":     outcome,
				"succeeded":   last.Succeeded,
				"failed":      last.Failed,
				"contracts":   last.Contracts,
				"artifact":    last.Artifact,
				"finished_at": last.FinishedAt,
			}
			if outcome == metrics.OutcomeFailed && health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/last-run", func(w http.ResponseWriter, r *http.Request) {
		last, ok := state.lastRun()
		if !ok {
			http.Error(w, "no run yet", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(last)
	})

	mux.Handle(metricsPath, metricsHandler)

	return mux
}
