package writer

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/rickgao/options-data/internal/model"
)

// Row is one contract in the snapshot artifact.
type Row struct {
	Symbol      string  `parquet:"symbol"`
	Underlying  string  `parquet:"underlying,dict"`
	Type        string  `parquet:"type,dict"`
	Expiration  int32   `parquet:"expiration"`
	Strike      float64 `parquet:"strike"`
	Bid         float32 `parquet:"bid"`
	Ask         float32 `parquet:"ask"`
	Last        float32 `parquet:"last"`
	Volume      int32   `parquet:"volume"`
	OpenInt     int32   `parquet:"openint"`
	ImpVol      float32 `parquet:"impvol"`
	NonStandard bool    `parquet:"non_standard"`
	LastTrade   int64   `parquet:"last_trade"` // ms since epoch
	Date        string  `parquet:"date,dict"`  // run date, YYYY-MM-DD
	FetchedAt   int64   `parquet:"fetched_at"` // ms since epoch
}

// RowsFromChains flattens chains into rows stamped with the run date.
func RowsFromChains(date string, chains []*model.Chain) []Row {
	n := 0
	for _, c := range chains {
		n += c.Len()
	}

	rows := make([]Row, 0, n)
	for _, c := range chains {
		if c == nil {
			continue
		}
		fetchedAt := c.FetchedAt.UnixMilli()
		for _, oc := range c.Contracts {
			rows = append(rows, Row{
				Symbol:      oc.Symbol,
				Underlying:  oc.Underlying,
				Type:        oc.Type,
				Expiration:  oc.Expiration,
				Strike:      oc.Strike,
				Bid:         oc.Bid,
				Ask:         oc.Ask,
				Last:        oc.Last,
				Volume:      oc.Volume,
				OpenInt:     oc.OpenInt,
				ImpVol:      oc.ImpVol,
				NonStandard: oc.NonStandard,
				LastTrade:   oc.LastTrade,
				Date:        date,
				FetchedAt:   fetchedAt,
			})
		}
	}
	return rows
}

// Codec returns the parquet compression codec for a configured name.
func Codec(name string) (compress.Codec, error) {
	switch name {
	case "", "brotli":
		return &parquet.Brotli, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", name)
	}
}

// Encode writes rows as a single Parquet file.
func Encode[T any](rows []T, codec compress.Codec) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf, parquet.Compression(codec))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("encode parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads every row of a Parquet file.
func Decode[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode parquet: %w", err)
	}
	return rows, nil
}
