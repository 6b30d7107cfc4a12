package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go/compress"

	"github.com/rickgao/options-data/internal/manifest"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/storage"
)

// Content types of stored objects.
const (
	ParquetContentType = "application/vnd.apache.parquet"
	JSONContentType    = "application/json"
)

// OverwritePolicy decides how a run's artifact key relates to earlier runs of the same date.
type OverwritePolicy string

const (
	// PolicyUnique keys each run's artifact by run ID.
	PolicyUnique OverwritePolicy = "unique"
	// PolicyReplace uses one key per date and overwrites it.
	PolicyReplace OverwritePolicy = "replace"
	// PolicyFail uses one key per date and refuses to overwrite it.
	PolicyFail OverwritePolicy = "fail"
)

// ErrArtifactExists is returned under PolicyFail when the date's artifact is already stored.
var ErrArtifactExists = errors.New("artifact already exists")

// ParsePolicy validates a configured overwrite policy.
func ParsePolicy(s string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(s); p {
	case PolicyUnique, PolicyReplace, PolicyFail:
		return p, nil
	case "":
		return PolicyUnique, nil
	default:
		return "", fmt.Errorf("unknown overwrite policy %q", s)
	}
}

// Partition returns the date partition of a run date.
func Partition(date string) string {
	return "date=" + date
}

// ArtifactKey returns the artifact key of a run.
func ArtifactKey(policy OverwritePolicy, date, runID string) string {
	if policy == PolicyUnique {
		return Partition(date) + "/options-" + runID + ".parquet"
	}
	return Partition(date) + "/options.parquet"
}

// ManifestKey returns the key of a run's manifest sidecar.
func ManifestKey(date, runID string) string {
	return Partition(date) + "/manifest-" + runID + ".json"
}

// Config holds snapshot writer configuration.
type Config struct {
	Overwrite    OverwritePolicy
	Compression  string
	SkipManifest bool
}

// SnapshotWriter turns a run's chains into one stored artifact.
type SnapshotWriter struct {
	cfg    Config
	store  storage.Store
	codec  compress.Codec
	logger *slog.Logger
}

// NewSnapshotWriter creates a SnapshotWriter.
func NewSnapshotWriter(cfg Config, store storage.Store, logger *slog.Logger) (*SnapshotWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Overwrite == "" {
		cfg.Overwrite = PolicyUnique
	}
	if _, err := ParsePolicy(string(cfg.Overwrite)); err != nil {
		return nil, err
	}
	codec, err := Codec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{
		cfg:    cfg,
		store:  store,
		codec:  codec,
		logger: logger,
	}, nil
}

// Write stores the chains as the run's artifact and records its URI in m.
// Every failure is returned as *model.WriteError.
func (w *SnapshotWriter) Write(ctx context.Context, m *manifest.Manifest, chains []*model.Chain) (string, error) {
	start := time.Now()
	key := ArtifactKey(w.cfg.Overwrite, m.Date(), m.ShortID())

	rows := RowsFromChains(m.Date(), chains)
	data, err := Encode(rows, w.codec)
	if err != nil {
		return "", &model.WriteError{Key: key, Err: err}
	}

	if w.cfg.Overwrite == PolicyFail {
		exists, err := w.store.Exists(ctx, key)
		if err != nil {
			return "", &model.WriteError{Key: key, Err: err}
		}
		if exists {
			return "", &model.WriteError{Key: key, Err: ErrArtifactExists}
		}
	}

	if err := w.store.Put(ctx, key, data, ParquetContentType); err != nil {
		return "", &model.WriteError{Key: key, Err: err}
	}

	uri := w.store.URI(key)
	m.SetArtifact(uri)

	w.logger.Info("snapshot written",
		"uri", uri,
		"rows", len(rows),
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return uri, nil
}

// WriteManifest stores the manifest's JSON form next to the artifact.
func (w *SnapshotWriter) WriteManifest(ctx context.Context, m *manifest.Manifest) error {
	if w.cfg.SkipManifest {
		return nil
	}

	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	key := ManifestKey(m.Date(), m.ShortID())
	if err := w.store.Put(ctx, key, data, JSONContentType); err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}

	w.logger.Debug("manifest written", "uri", w.store.URI(key))
	return nil
}
