// Package storage provides the object stores snapshots are written to.
//
// Destinations:
//   - s3://bucket/prefix: S3 or any S3-compatible service (custom endpoint, path-style)
//   - file:///abs/dir or a plain path: a local directory
//   - mem://: process memory, for tests and dry runs
//
// Keys are slash-separated and relative to the destination root.
package storage
