// Package collector implements the fan-out fetch stage of a collection run.
//
// The Collector:
//   - Fetches every ticker's option chain with bounded concurrency
//   - Retries a failing ticker with exponential backoff before giving up on it
//   - Records every ticker in the run manifest, succeeded or failed
//   - Stops waiting at the run timeout and keeps whatever was fetched
package collector
