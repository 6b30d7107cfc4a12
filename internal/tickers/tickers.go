// Package tickers loads the list of underlying symbols to collect.
package tickers

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rickgao/options-data/internal/model"
)

// ErrEmpty is wrapped by the ConfigError returned for a file without symbols.
var ErrEmpty = errors.New("no symbols found")

var upper = cases.Upper(language.Und)

// Load reads a newline-delimited symbol file.
//
// Blank lines and lines starting with '#' are skipped, symbols are upper-cased
// and duplicates are dropped keeping the first occurrence. A missing file, an
// invalid symbol or a file without symbols yields a *model.ConfigError.
func Load(path string) ([]string, error) {
	if path == "" {
		return nil, &model.ConfigError{Field: "symbol_file", Err: errors.New("path is required")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &model.ConfigError{Field: "symbol_file", Err: fmt.Errorf("open ticker file: %w", err)}
	}
	defer f.Close()

	var symbols []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		symbol := upper.String(line)
		if err := Validate(symbol); err != nil {
			return nil, &model.ConfigError{
				Field: fmt.Sprintf("%s:%d", path, lineNo),
				Err:   err,
			}
		}

		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	if err := scanner.Err(); err != nil {
		return nil, &model.ConfigError{Field: "symbol_file", Err: fmt.Errorf("read ticker file: %w", err)}
	}

	if len(symbols) == 0 {
		return nil, &model.ConfigError{Field: "symbol_file", Err: fmt.Errorf("%w in %s", ErrEmpty, path)}
	}

	return symbols, nil
}

// Single returns a one-symbol list, validated the same way Load validates lines.
func Single(symbol string) ([]string, error) {
	s := upper.String(strings.TrimSpace(symbol))
	if s == "" {
		return nil, &model.ConfigError{Field: "option", Err: ErrEmpty}
	}
	if err := Validate(s); err != nil {
		return nil, &model.ConfigError{Field: "option", Err: err}
	}
	return []string{s}, nil
}

// Validate checks that a symbol only contains characters used by US listings
// (letters, digits, '.', '-', '/', '^').
func Validate(symbol string) error {
	if symbol == "" {
		return errors.New("empty symbol")
	}
	if len(symbol) > 16 {
		return fmt.Errorf("symbol %q is too long", symbol)
	}
	for _, c := range symbol {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '/' || c == '^':
		default:
			return fmt.Errorf("invalid character %q in symbol %q", c, symbol)
		}
	}
	return nil
}
