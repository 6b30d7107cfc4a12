package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rickgao/options-data/internal/backfill"
	"github.com/rickgao/options-data/internal/config"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/storage"
)

type backfillOptions struct {
	parallelism int
	destination string
	compression string
}

func newBackfillCmd(global *globalOptions) *cobra.Command {
	var opts backfillOptions

	cmd := &cobra.Command{
		Use:   "backfill <files...>",
		Short: "Import historical option CSV files as Parquet",
		Long: `backfill converts historical option exports (CSV, optionally .gz or .zst)
into one Parquet object per file, keyed date=<first date>/<SYMBOL>.parquet.
Objects that already exist are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd, *global, opts, args)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.parallelism, "parallelism", 0, "files converted at once (default from config, 4)")
	f.StringVar(&opts.destination, "dest", "", "s3://bucket/prefix or local directory")
	f.StringVar(&opts.compression, "compression", "", "parquet codec (brotli|zstd|snappy|gzip|none)")
	return cmd
}

func runBackfill(cmd *cobra.Command, global globalOptions, opts backfillOptions, args []string) error {
	// Backfill needs no API credentials, so the config is not validated as a whole.
	cfg, err := config.LoadWithDefaults(global.configPath)
	if err != nil {
		return &model.ConfigError{Field: "config", Err: err}
	}

	dest := cfg.Backfill.Destination
	if opts.destination != "" {
		dest = opts.destination
	}
	parallelism := cfg.Backfill.Parallelism
	if opts.parallelism > 0 {
		parallelism = opts.parallelism
	}
	compression := cfg.Storage.Compression
	if opts.compression != "" {
		compression = opts.compression
	}

	files, err := backfill.ExpandFiles(args)
	if err != nil {
		return err
	}

	logger := slog.Default()
	logger.Info("starting backfill",
		"files", len(files),
		"destination", dest,
		"parallelism", parallelism,
	)

	ctx := cmd.Context()
	store, err := storage.Open(ctx, dest, storage.S3Options{
		Region:      cfg.Storage.Region,
		EndpointURL: cfg.Storage.EndpointURL,
	})
	if err != nil {
		return &model.ConfigError{Field: "dest", Err: err}
	}

	im, err := backfill.New(backfill.Config{
		Parallelism: parallelism,
		Compression: compression,
	}, store, logger)
	if err != nil {
		return &model.ConfigError{Field: "compression", Err: err}
	}

	results, err := im.Run(ctx, files)

	out := cmd.OutOrStdout()
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "FAIL  %s: %v\n", r.File, r.Err)
		case r.Skipped:
			fmt.Fprintf(out, "SKIP  %s -> %s (exists)\n", r.File, store.URI(r.Key))
		default:
			fmt.Fprintf(out, "OK    %s -> %s (%d rows)\n", r.File, store.URI(r.Key), r.Rows)
		}
	}

	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	return nil
}
