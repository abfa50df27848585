package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"trade_engine/internal/models"
)

func TestParseGrid(t *testing.T) {
	grid, err := parseGrid([]string{"lookbackPeriod=5, 10", "momentumThreshold=0.01,0.02"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]float64{
		models.ParamLookbackPeriod:    {5, 10},
		models.ParamMomentumThreshold: {0.01, 0.02},
	}
	if !reflect.DeepEqual(grid, want) {
		t.Fatalf("grid = %v", grid)
	}

	for _, bad := range []string{"lookbackPeriod", "=1", "lookbackPeriod=x"} {
		if _, err := parseGrid([]string{bad}); !models.IsConfiguration(err) {
			t.Fatalf("%q: err = %v", bad, err)
		}
	}
}

func TestParseRange(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	r, err := parseRange("2024-01-01T00:00:00Z", "", now)
	if err != nil {
		t.Fatal(err)
	}
	if !r.To.Equal(now) || r.From.Month() != time.January {
		t.Fatalf("range = %+v", r)
	}
	if _, err := parseRange("2024-03-01T00:00:00Z", "", now); !models.IsConfiguration(err) {
		t.Fatalf("inverted range err = %v", err)
	}
	if _, err := parseRange("", "", now); !models.IsConfiguration(err) {
		t.Fatalf("missing from err = %v", err)
	}
}

func TestPickStrategyLatestRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	body := `strategies:
  - id: s1
    revision: 1
    type: momentum
    exchange: okx
    symbol: BTC-USDT
    timeframe: 1h
  - id: s1
    revision: 2
    type: momentum
    exchange: okx
    symbol: BTC-USDT
    timeframe: 4h
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := pickStrategy(path, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Revision != 2 || cfg.Timeframe != "4h" {
		t.Fatalf("picked %+v", cfg)
	}
	if _, err := pickStrategy(path, "missing"); !models.IsConfiguration(err) {
		t.Fatalf("missing strategy err = %v", err)
	}
}
