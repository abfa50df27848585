package models

import (
	"testing"
	"time"
)

func TestTimeframeDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"3m":  3 * time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"30m": 30 * time.Minute,
		"60m": time.Hour,
		"1h":  time.Hour,
		"1H":  time.Hour,
		"2h":  2 * time.Hour,
		"4H":  4 * time.Hour,
		"6h":  6 * time.Hour,
		"6H":  6 * time.Hour,
		"8h":  8 * time.Hour,
		"12h": 12 * time.Hour,
		"12H": 12 * time.Hour,
		"1d":  24 * time.Hour,
		"1D":  24 * time.Hour,
		"3d":  72 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"1W":  7 * 24 * time.Hour,
		"7m":  0,
		"":    0,
		"1M":  0,
	}
	for tf, want := range cases {
		if got := TimeframeDuration(tf); got != want {
			t.Fatalf("%q: %s, want %s", tf, got, want)
		}
	}
}

func TestCandleEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Candle{Timeframe: "6h", Start: start}
	if !c.End().Equal(start.Add(6 * time.Hour)) {
		t.Fatalf("end = %s", c.End())
	}
}
