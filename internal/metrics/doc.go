// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Runs by outcome, last run time and duration
//   - Tickers by status, fetch attempts and durations
//   - Contracts written per run
//
// Daemon mode serves them over HTTP; one-shot runs push them to a Pushgateway.
package metrics
