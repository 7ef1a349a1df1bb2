// Package ticker handles stock ticker symbol normalization and validation.
//
// Tickers are matched case-insensitively everywhere in the engine. The
// canonical form is trimmed and upper-cased; that form is what the stores
// key positions and listings by.
package ticker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches 1–10 character symbols such as AAPL, BRK.B or RDS-A.
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]*([.\-][A-Z0-9]+)?$`)

// MaxLen is the longest accepted symbol.
const MaxLen = 10

// ErrInvalidTicker is returned by Parse for an empty, overlong or malformed symbol.
var ErrInvalidTicker = errors.New("ticker: invalid symbol")

// Normalize returns the canonical form of a ticker symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Parse normalizes and validates a ticker symbol.
func Parse(symbol string) (string, error) {
	s := Normalize(symbol)
	if s == "" || len(s) > MaxLen || !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, symbol)
	}
	return s, nil
}

// Equal reports whether two symbols name the same ticker.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
