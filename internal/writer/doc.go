// Package writer implements the snapshot writer.
//
// One run produces one Parquet artifact holding every successfully fetched
// contract, stored under a date partition:
//
//	date=2024-01-10/options-1a2b3c4d.parquet   (overwrite: unique)
//	date=2024-01-10/options.parquet            (overwrite: replace, fail)
//
// A JSON copy of the run manifest is stored next to it.
// Artifacts are never modified after they are written.
package writer
