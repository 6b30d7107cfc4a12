package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/options-data/internal/config"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/pipeline"
	"github.com/rickgao/options-data/internal/version"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globalOptions are shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return pipeline.ExitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			slog.Error("collect failed", "exit_code", exitErr.code, "error", exitErr.err)
		}
		return exitErr.code
	}

	slog.Error("collect failed", "error", err)
	var cfgErr *model.ConfigError
	if errors.As(err, &cfgErr) {
		return pipeline.ExitConfigError
	}
	return pipeline.ExitFailure
}

func newRootCmd() *cobra.Command {
	var global globalOptions
	var opts collectOptions

	root := &cobra.Command{
		Use:   "collect (-f <ticker_file> | -s <symbol>)",
		Short: "Collect daily option chain snapshots",
		Long: `collect fetches the full option chain of every ticker, writes one Parquet
snapshot per run to S3 or a local directory and optionally emails a summary.

Without --now it runs as a daemon and collects every weekday at the due hour.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(global.logLevel); err != nil {
				return err
			}
			if err := config.LoadDotEnv(global.envFile); err != nil {
				return &model.ConfigError{Field: "env_file", Err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, global, opts)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &model.ConfigError{Field: "flags", Err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&global.configPath, "config", "", "path to YAML config file")
	pf.StringVar(&global.envFile, "env-file", ".env", "dotenv file seeding the environment")
	pf.StringVar(&global.logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	f := root.Flags()
	f.StringVarP(&opts.symbolFile, "symbol-file", "f", "", "file with one ticker per line")
	f.StringVarP(&opts.symbol, "option", "s", "", "collect a single ticker")
	f.StringVar(&opts.destination, "destination", "", "s3://bucket/prefix or local directory")
	f.BoolVar(&opts.now, "now", false, "run one collection immediately and exit")
	f.BoolVar(&opts.email, "email", false, "send a summary email (needs EMAIL_USER and EMAIL_PWD)")
	f.StringVarP(&opts.date, "date", "d", "", "run date override for a single run (YYYY-MM-DD)")
	f.IntVar(&opts.due, "due", 0, "hour of day the daemon collects at (default from config, 21)")

	root.AddCommand(newBackfillCmd(&global), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "collect", version.String())
		},
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return &model.ConfigError{Field: "log-level", Err: err}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return nil
}
