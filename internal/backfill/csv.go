package backfill

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/rickgao/options-data/internal/model"
)

var headerRemap = map[string]string{
	"TheoreticalVol": "theoretical_vol",
	"NonStandard":    "non_standard",
}

// RemapHeader normalizes one CSV column name.
func RemapHeader(col string) string {
	col = strings.TrimSpace(col)
	if mapped, ok := headerRemap[col]; ok {
		return mapped
	}
	return strings.ToLower(col)
}

// Number is a CSV numeric cell; blank cells read as zero.
type Number struct {
	decimal.Decimal
}

func (n Number) MarshalCSV() (string, error) {
	return n.String(), nil
}

func (n *Number) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		n.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	n.Decimal = d
	return nil
}

// Flag is a CSV boolean cell accepting true/false, 1/0 and blanks.
type Flag bool

func (f *Flag) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*f = false
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*f = n != 0
		return nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return fmt.Errorf("parse flag %q: %w", s, err)
	}
	*f = Flag(b)
	return nil
}

// Record is one row of a historical export, after header normalization.
type Record struct {
	Date           string `csv:"date"`
	Symbol         string `csv:"symbol"`
	Underlying     string `csv:"underlying"`
	Type           string `csv:"type"`
	Expiration     string `csv:"expiration"`
	Strike         Number `csv:"strike"`
	Bid            Number `csv:"bid"`
	Ask            Number `csv:"ask"`
	Last           Number `csv:"last"`
	Volume         Number `csv:"volume"`
	OpenInt        Number `csv:"openint"`
	ImpVol         Number `csv:"impvol"`
	TheoreticalVol Number `csv:"theoretical_vol"`
	NonStandard    Flag   `csv:"non_standard"`
}

// ReadCSV parses a historical export, normalizing its header first.
func ReadCSV(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = strings.TrimRight(header, "\r\n")
	if header == "" {
		return nil, errors.New("empty csv")
	}

	cols := strings.Split(strings.TrimPrefix(header, "\ufeff"), ",")
	for i, c := range cols {
		cols[i] = RemapHeader(c)
	}

	in := io.MultiReader(strings.NewReader(strings.Join(cols, ",")+"\n"), br)

	var records []Record
	if err := gocsv.Unmarshal(in, &records); err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

// ParseExpiration accepts YYYYMMDD or YYYY-MM-DD.
func ParseExpiration(s string) (int32, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "-") {
		return model.ExpirationToInt(s)
	}
	// pandas may have written the int column as a float
	s = strings.TrimSuffix(s, ".0")
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 19000101 || n > 99991231 {
		return 0, fmt.Errorf("parse expiration %q", s)
	}
	return int32(n), nil
}
