// Package database persists run manifests to PostgreSQL.
//
// The ledger is optional. When enabled, each finished run is appended to:
//   - collection_runs: one row per run (date, phase, counts, artifact)
//   - collection_run_tickers: one row per ticker of the run
//
// Rows are append-only; a run recorded twice keeps its first row.
package database
