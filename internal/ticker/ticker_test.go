package ticker

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	cases := map[string]string{
		"AAPL":    "AAPL",
		"aapl":    "AAPL",
		"  msft ": "MSFT",
		"brk.b":   "BRK.B",
		"RDS-A":   "RDS-A",
		"X":       "X",
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "1ABC", "AB CD", "TOOLONGSYMBOL", "AB..C", "$AAPL"} {
		_, err := Parse(in)
		if !errors.Is(err, ErrInvalidTicker) {
			t.Errorf("Parse(%q): expected ErrInvalidTicker, got %v", in, err)
		}
	}
}

func TestEqual_CaseInsensitive(t *testing.T) {
	if !Equal("aapl", "AAPL") {
		t.Error("aapl and AAPL should be equal")
	}
	if Equal("AAPL", "AAP") {
		t.Error("AAPL and AAP should differ")
	}
}
