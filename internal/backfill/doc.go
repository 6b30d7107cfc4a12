// Package backfill imports historical option-chain CSV exports into the
// snapshot store, one Parquet object per input file.
//
// Input files may be plain, gzip (.gz) or zstd (.zst) compressed. Headers are
// normalized (TheoreticalVol becomes theoretical_vol, NonStandard becomes
// non_standard, everything else is lower-cased) and each file is stored as
//
//	date=<first row's date>/<SYMBOL>.parquet
//
// Objects that already exist are skipped, so an interrupted import can be rerun.
package backfill
