// Package model defines shared data types used across the options collector.
//
// Conventions:
//   - Expirations: int32 YYYYMMDD (e.g. 20240119)
//   - Run dates: string YYYY-MM-DD
//   - Timestamps: int64 milliseconds since Unix epoch
//   - Option type: "c" for calls, "p" for puts
package model
