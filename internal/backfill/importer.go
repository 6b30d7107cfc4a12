package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/parquet-go/parquet-go/compress"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/storage"
	"github.com/rickgao/options-data/internal/writer"
)

// Row is one historical contract in a backfilled artifact.
type Row struct {
	Date           string  `parquet:"date,dict"`
	Symbol         string  `parquet:"symbol"`
	Underlying     string  `parquet:"underlying,dict"`
	Type           string  `parquet:"type,dict"`
	Expiration     int32   `parquet:"expiration"`
	Strike         float64 `parquet:"strike"`
	Bid            float32 `parquet:"bid"`
	Ask            float32 `parquet:"ask"`
	Last           float32 `parquet:"last"`
	Volume         int32   `parquet:"volume"`
	OpenInt        int32   `parquet:"openint"`
	ImpVol         float32 `parquet:"impvol"`
	TheoreticalVol float32 `parquet:"theoretical_vol"`
	NonStandard    bool    `parquet:"non_standard"`
}

// Config holds importer configuration.
type Config struct {
	Parallelism int    // files processed at once (default: 4)
	Compression string // parquet codec name (default: brotli)
}

// Result is the outcome of one input file.
type Result struct {
	File    string
	Key     string
	Rows    int
	Skipped bool
	Err     error
}

// Importer converts historical CSV files into stored Parquet objects.
type Importer struct {
	cfg    Config
	store  storage.Store
	codec  compress.Codec
	logger *slog.Logger
}

// New creates an Importer writing to store.
func New(cfg Config, store storage.Store, logger *slog.Logger) (*Importer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 4
	}
	codec, err := writer.Codec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Importer{cfg: cfg, store: store, codec: codec, logger: logger}, nil
}

// ExpandFiles resolves file arguments, which may be globs or start with ~.
func ExpandFiles(patterns []string) ([]string, error) {
	home, _ := os.UserHomeDir()

	var files []string
	seen := make(map[string]bool)
	for _, p := range patterns {
		if home != "" && (p == "~" || strings.HasPrefix(p, "~/")) {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	if len(files) == 0 {
		return nil, &model.ConfigError{Field: "file", Err: errors.New("no input files matched")}
	}
	return files, nil
}

// SymbolFromPath derives the underlying from a file name: /x/aapl.csv.gz is AAPL.
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(strings.ToLower(base), ".csv"); i >= 0 {
		base = base[:i]
	}
	return strings.ToUpper(base)
}

// Key returns the object key of a backfilled file.
func Key(date, symbol string) string {
	return writer.Partition(date) + "/" + symbol + ".parquet"
}

// Run imports files with bounded parallelism. Per-file failures do not stop
// the other files; they are joined into the returned error.
func (im *Importer) Run(ctx context.Context, files []string) ([]Result, error) {
	start := time.Now()
	results := make([]Result, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.cfg.Parallelism)

	var mu sync.Mutex
	var errs []error

	for i, file := range files {
		g.Go(func() error {
			res := im.ImportFile(ctx, file)
			results[i] = res
			if res.Err != nil {
				mu.Lock()
				errs = append(errs, res.Err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var imported, skipped int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Err == nil:
			imported++
		}
	}

	im.logger.Info("backfill complete",
		"files", len(files),
		"imported", imported,
		"skipped", skipped,
		"failed", len(errs),
		"duration", time.Since(start),
	)

	return results, errors.Join(errs...)
}

// ImportFile converts one file and stores it unless its key already exists.
func (im *Importer) ImportFile(ctx context.Context, path string) Result {
	res := Result{File: path}

	records, err := readFile(path)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		return res
	}
	if len(records) == 0 {
		res.Err = fmt.Errorf("%s: no rows", path)
		return res
	}

	date, err := time.Parse(model.DateLayout, strings.TrimSpace(records[0].Date))
	if err != nil {
		res.Err = fmt.Errorf("%s: invalid date %q: %w", path, records[0].Date, err)
		return res
	}

	symbol := SymbolFromPath(path)
	res.Key = Key(date.Format(model.DateLayout), symbol)

	exists, err := im.store.Exists(ctx, res.Key)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		return res
	}
	if exists {
		im.logger.Warn("skipping existing object", "uri", im.store.URI(res.Key))
		res.Skipped = true
		return res
	}

	rows, err := ToRows(records, symbol)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		return res
	}

	data, err := writer.Encode(rows, im.codec)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		return res
	}

	if err := im.store.Put(ctx, res.Key, data, writer.ParquetContentType); err != nil {
		res.Err = &model.WriteError{Key: res.Key, Err: err}
		return res
	}

	res.Rows = len(rows)
	im.logger.Info("file imported", "file", path, "uri", im.store.URI(res.Key), "rows", len(rows))
	return res
}

// ToRows converts parsed records. The underlying defaults to the file's symbol.
func ToRows(records []Record, symbol string) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	for i, r := range records {
		exp, err := ParseExpiration(r.Expiration)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}

		typ := model.NormalizeOptionType(r.Type)
		if typ == "" {
			typ = strings.ToLower(strings.TrimSpace(r.Type))
		}

		underlying := strings.TrimSpace(r.Underlying)
		if underlying == "" {
			underlying = symbol
		}

		rows = append(rows, Row{
			Date:           strings.TrimSpace(r.Date),
			Symbol:         strings.TrimSpace(r.Symbol),
			Underlying:     underlying,
			Type:           typ,
			Expiration:     exp,
			Strike:         r.Strike.InexactFloat64(),
			Bid:            float32(r.Bid.InexactFloat64()),
			Ask:            float32(r.Ask.InexactFloat64()),
			Last:           float32(r.Last.InexactFloat64()),
			Volume:         int32(r.Volume.IntPart()),
			OpenInt:        int32(r.OpenInt.IntPart()),
			ImpVol:         float32(r.ImpVol.InexactFloat64()),
			TheoreticalVol: float32(r.TheoreticalVol.InexactFloat64()),
			NonStandard:    bool(r.NonStandard),
		})
	}
	return rows, nil
}

func readFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	r, closeFn, err := decompress(path, f)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return ReadCSV(r)
}

// decompress picks a decoder by file extension.
func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}
