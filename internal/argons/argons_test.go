package argons

import (
	"errors"
	"math"
	"testing"
)

func TestFormat(t *testing.T) {
	cases := map[int64]string{
		0:         "₳0.000",
		1_500:     "₳1.500",
		1_234_567: "₳1,234.567",
	}
	for in, want := range cases {
		if got := Format(in); got != want {
			t.Fatalf("Format(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	cases := map[string]int64{
		"1.5":      1_500,
		"₳2":       2_000,
		"0.001":    1,
		"1,000.25": 1_000_250,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{
		"", "abc", "0.0001", "-1",
		"18446744073709551.617", "9223372036854775.808", "1e20",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Parse(%q): expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestParseMaxAmount(t *testing.T) {
	got, err := Parse("9223372036854775.807")
	if err != nil {
		t.Fatalf("Parse max: %v", err)
	}
	if got != math.MaxInt64 {
		t.Fatalf("Parse max = %d, want %d", got, int64(math.MaxInt64))
	}
}
