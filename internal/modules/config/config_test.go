package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trade_engine/internal/models"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "values.yaml", `
log_level: debug
feed:
  queue_depth: 50
  backoff_cap: 10s
backtest:
  max_concurrent: 2
  execution:
    spread: 0.002
    slippage: 0.0005
    commission: 0.001
`)
	cfg := Default()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Feed.QueueDepth != 50 {
		t.Fatalf("overrides not applied: %+v", cfg.Feed)
	}
	if cfg.Feed.BackoffCap != 10*time.Second || cfg.Feed.BackoffBase != time.Second {
		t.Fatalf("backoff = %s/%s", cfg.Feed.BackoffBase, cfg.Feed.BackoffCap)
	}
	if cfg.Backtest.Execution.Spread != 0.002 || cfg.Backtest.MaxConcurrent != 2 {
		t.Fatalf("backtest section = %+v", cfg.Backtest)
	}
	if _, ok := cfg.Feed.RateLimits["okx"]; !ok {
		t.Fatalf("default rate limits lost")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMissingFileKeepsDefaults(t *testing.T) {
	cfg := Default()
	if err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Backtest.MaxConcurrent != 3 || cfg.Feed.QueueDepth != 1000 {
		t.Fatalf("defaults changed: %+v", cfg)
	}
}

func TestValidateRejectsBadBackoff(t *testing.T) {
	cfg := Default()
	cfg.Feed.BackoffCap = cfg.Feed.BackoffBase / 2
	if err := cfg.Validate(); !models.IsConfiguration(err) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
}

func TestLoadStrategies(t *testing.T) {
	path := writeFile(t, "strategies.yaml", `
strategies:
  - id: btc-momo
    type: momentum
    exchange: OKX
    symbol: btc-usdt
    timeframe: 1m
    parameters:
      lookbackPeriod: 4
      momentum_threshold: 0.02
    risk:
      max_risk_per_trade: 0.01
      max_position_size: 0.5
      max_concurrent_trades: 2
`)
	got, err := LoadStrategies(path)
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d strategies", len(got))
	}
	s := got[0]
	if s.Revision != 1 || s.Exchange != "okx" || s.Symbol != "BTC-USDT" {
		t.Fatalf("normalisation failed: %+v", s)
	}
	if s.Param(models.ParamLookbackPeriod, 0) != 4 || s.Param(models.ParamMomentumThreshold, 0) != 0.02 {
		t.Fatalf("parameters not canonicalised: %v", s.Parameters)
	}
	if s.Risk.MaxConcurrentTrades != 2 || s.Risk.MaxRiskPerTrade != 0.01 {
		t.Fatalf("risk = %+v", s.Risk)
	}
}

func TestLoadStrategiesUnknownType(t *testing.T) {
	path := writeFile(t, "strategies.yaml", `
strategies:
  - id: x
    type: martingale
`)
	if _, err := LoadStrategies(path); !models.IsConfiguration(err) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
}
