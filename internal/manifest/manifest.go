// Package manifest tracks the outcome of one collection run.
//
// A Manifest is created at run start, appended to by concurrent fetch workers,
// and finalized once the run ends. Each ticker is recorded at most once.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is a step of the run lifecycle.
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseFetching  Phase = "fetching"
	PhaseWriting   Phase = "writing"
	PhaseNotifying Phase = "notifying"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Status is the outcome of one ticker.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrAlreadyRecorded is returned when a ticker is recorded twice.
var ErrAlreadyRecorded = errors.New("ticker already recorded")

// ErrUnknownTicker is returned when recording a ticker that is not part of the run.
var ErrUnknownTicker = errors.New("ticker not part of run")

// TickerResult is the per-ticker entry of a manifest.
type TickerResult struct {
	Ticker    string        `json:"ticker"`
	Status    Status        `json:"status"`
	Contracts int           `json:"contracts"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Manifest records a run's date, destination and per-ticker results.
type Manifest struct {
	mu sync.Mutex

	runID       uuid.UUID
	date        string
	destination string
	tickers     []string
	startedAt   time.Time
	finishedAt  time.Time
	phase       Phase

	results     map[string]TickerResult
	artifactKey string
	writeErr    string
}

// New creates a manifest for the given run date, destination and ticker list.
func New(date, destination string, tickers []string) *Manifest {
	t := make([]string, len(tickers))
	copy(t, tickers)
	return &Manifest{
		runID:       uuid.New(),
		date:        date,
		destination: destination,
		tickers:     t,
		startedAt:   time.Now().UTC(),
		phase:       PhaseInit,
		results:     make(map[string]TickerResult, len(tickers)),
	}
}

// RunID returns the run's unique identifier.
func (m *Manifest) RunID() uuid.UUID { return m.runID }

// ShortID returns the first 8 hex characters of the run ID.
func (m *Manifest) ShortID() string { return m.runID.String()[:8] }

// Date returns the run date (YYYY-MM-DD).
func (m *Manifest) Date() string { return m.date }

// Destination returns the configured destination URI.
func (m *Manifest) Destination() string { return m.destination }

// Tickers returns the run's ticker list in input order.
func (m *Manifest) Tickers() []string {
	t := make([]string, len(m.tickers))
	copy(t, m.tickers)
	return t
}

// StartedAt returns when the manifest was created.
func (m *Manifest) StartedAt() time.Time { return m.startedAt }

// FinishedAt returns when the manifest was finalized, or the zero time.
func (m *Manifest) FinishedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finishedAt
}

// Phase returns the current lifecycle phase.
func (m *Manifest) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// SetPhase moves the run to the given phase. Terminal phases are final.
func (m *Manifest) SetPhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseDone || m.phase == PhaseFailed {
		return
	}
	m.phase = p
}

// Record appends a ticker result. Safe for concurrent use.
func (m *Manifest) Record(r TickerResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasTicker(r.Ticker) {
		return fmt.Errorf("%w: %s", ErrUnknownTicker, r.Ticker)
	}
	if _, ok := m.results[r.Ticker]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, r.Ticker)
	}
	m.results[r.Ticker] = r
	return nil
}

func (m *Manifest) hasTicker(ticker string) bool {
	for _, t := range m.tickers {
		if t == ticker {
			return true
		}
	}
	return false
}

// Result returns the recorded result for a ticker.
func (m *Manifest) Result(ticker string) (TickerResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[ticker]
	return r, ok
}

// Results returns all recorded results in ticker input order.
func (m *Manifest) Results() []TickerResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TickerResult, 0, len(m.results))
	for _, t := range m.tickers {
		if r, ok := m.results[t]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Succeeded returns the tickers recorded as succeeded, in input order.
func (m *Manifest) Succeeded() []string { return m.withStatus(StatusSucceeded) }

// Failed returns the tickers recorded as failed, in input order.
func (m *Manifest) Failed() []string { return m.withStatus(StatusFailed) }

func (m *Manifest) withStatus(s Status) []string {
	var out []string
	for _, r := range m.Results() {
		if r.Status == s {
			out = append(out, r.Ticker)
		}
	}
	return out
}

// Pending returns tickers that have no result yet.
func (m *Manifest) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, t := range m.tickers {
		if _, ok := m.results[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Contracts returns the total number of contracts across succeeded tickers.
func (m *Manifest) Contracts() int {
	total := 0
	for _, r := range m.Results() {
		if r.Status == StatusSucceeded {
			total += r.Contracts
		}
	}
	return total
}

// SetArtifact records the storage key of the written artifact.
func (m *Manifest) SetArtifact(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifactKey = key
}

// Artifact returns the storage key of the written artifact, or "".
func (m *Manifest) Artifact() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifactKey
}

// SetWriteError records a write-stage failure.
func (m *Manifest) SetWriteError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err.Error()
}

// WriteError returns the recorded write-stage failure, or "".
func (m *Manifest) WriteError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeErr
}

// Finalize marks the run finished with the given terminal phase.
func (m *Manifest) Finalize(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseDone || m.phase == PhaseFailed {
		return
	}
	m.phase = p
	m.finishedAt = time.Now().UTC()
}

// Snapshot is the serializable form of a manifest.
type Snapshot struct {
	RunID       string         `json:"run_id"`
	Date        string         `json:"date"`
	Destination string         `json:"destination"`
	Phase       Phase          `json:"phase"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at,omitzero"`
	Artifact    string         `json:"artifact,omitempty"`
	WriteError  string         `json:"write_error,omitempty"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Contracts   int            `json:"contracts"`
	Results     []TickerResult `json:"results"`
}

// Snapshot returns a point-in-time copy of the manifest.
func (m *Manifest) Snapshot() Snapshot {
	results := m.Results()
	s := Snapshot{
		RunID:       m.runID.String(),
		Date:        m.date,
		Destination: m.destination,
		Phase:       m.Phase(),
		StartedAt:   m.startedAt,
		FinishedAt:  m.FinishedAt(),
		Artifact:    m.Artifact(),
		WriteError:  m.WriteError(),
		Results:     results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusSucceeded:
			s.Succeeded++
			s.Contracts += r.Contracts
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// MarshalJSON encodes the manifest snapshot.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}
