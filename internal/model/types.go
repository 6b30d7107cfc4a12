package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Option types as stored in the snapshot.
const (
	OptionTypeCall = "c"
	OptionTypePut  = "p"
)

// DateLayout is the layout of run dates and of the artifact date partition.
const DateLayout = "2006-01-02"

// OptionContract is one row of an option chain at a point in time.
type OptionContract struct {
	Symbol      string  // OCC contract symbol (e.g. "AAPL240119C00150000")
	Underlying  string  // Underlying ticker
	Type        string  // "c" or "p"
	Expiration  int32   // YYYYMMDD
	Strike      float64 // Strike price in dollars
	Bid         float32 // Best bid
	Ask         float32 // Best ask
	Last        float32 // Last trade price
	Volume      int32   // Contracts traded today
	OpenInt     int32   // Open interest
	ImpVol      float32 // Implied volatility (mid)
	NonStandard bool    // Adjusted or non-100 deliverable
	LastTrade   int64   // Last trade time (ms since epoch), 0 if never traded
}

// Chain is the full option chain of one underlying, across all expirations.
type Chain struct {
	Underlying string
	FetchedAt  time.Time
	Contracts  []OptionContract
}

// Len returns the number of contracts in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Contracts)
}

// ExpirationToInt converts "2024-01-19" to 20240119.
func ExpirationToInt(date string) (int32, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return 0, fmt.Errorf("parse expiration %q: %w", date, err)
	}
	n, err := strconv.ParseInt(t.Format("20060102"), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

// NormalizeOptionType maps "call"/"put" (any case) and "c"/"p" to "c"/"p".
// Returns "" for anything else.
func NormalizeOptionType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "call", "calls":
		return OptionTypeCall
	case "p", "put", "puts":
		return OptionTypePut
	default:
		return ""
	}
}
