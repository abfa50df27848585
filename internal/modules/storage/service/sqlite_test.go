package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"trade_engine/internal/models"
)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStrategyRevisions(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := models.StrategyConfig{
		ID: "s1", Revision: 1, Type: models.StrategyMomentum, Exchange: "okx", Symbol: "BTC-USDT", Timeframe: "1h",
		Parameters: map[string]float64{models.ParamLookbackPeriod: 10},
		Risk:       models.RiskParameters{MaxRiskPerTrade: 0.01, MaxPositionSize: 0.5, MaxConcurrentTrades: 1},
		CreatedAt:  created,
	}
	if err := s.SaveStrategy(ctx, base); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveStrategy(ctx, base); err == nil {
		t.Fatal("duplicate revision accepted")
	}
	if err := s.SaveStrategy(ctx, base.WithParameters(map[string]float64{models.ParamLookbackPeriod: 20}, created.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestStrategy(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Revision != 2 || latest.Parameters[models.ParamLookbackPeriod] != 20 || latest.Risk.MaxPositionSize != 0.5 {
		t.Fatalf("latest = %+v", latest)
	}
	if _, err := s.LatestStrategy(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSQLiteBacktestWithLedger(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	pnl := 12.5
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &models.BacktestRun{
		ID:       "run-1",
		Strategy: models.StrategyConfig{ID: "s1", Revision: 1},
		Ledger: []models.Trade{
			{ID: "t-000001", StrategyID: "s1", Side: models.SideBuy, Quantity: 1, Price: 100, Timestamp: at},
			{ID: "t-000002", StrategyID: "s1", Side: models.SideSell, Quantity: 1, Price: 112.5, Timestamp: at, RealizedPnL: &pnl},
		},
		Report:      models.PerformanceReport{ProfitFactor: models.Ratio(math.Inf(1)), Trades: 1, Wins: 1},
		CompletedAt: at,
	}
	if err := s.SaveBacktest(ctx, run); err != nil {
		t.Fatal(err)
	}
	other := *run
	other.ID = "run-2"
	if err := s.SaveBacktest(ctx, &other); err != nil {
		t.Fatalf("ledger ids are per run: %v", err)
	}
	if err := s.SaveBacktest(ctx, run); err == nil {
		t.Fatal("second save of the same run accepted")
	}

	got, err := s.Backtest(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Ledger) != 2 || *got.Ledger[1].RealizedPnL != pnl || !math.IsInf(float64(got.Report.ProfitFactor), 1) {
		t.Fatalf("got %+v", got)
	}
	if live, _ := s.Trades(ctx, "s1"); len(live) != 0 {
		t.Fatalf("backtest ledger leaked into live trades: %+v", live)
	}
	if _, err := s.Backtest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSQLiteTradesAndDeadLetters(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.AppendTrade(ctx, models.Trade{ID: "a", StrategyID: "s1", Side: models.SideBuy, Quantity: 2, Timestamp: at})
	_ = s.AppendTrade(ctx, models.Trade{ID: "b", StrategyID: "s2", Side: models.SideBuy, Timestamp: at})

	got, err := s.Trades(ctx, "s1")
	if err != nil || len(got) != 1 || got[0].Quantity != 2 || got[0].RealizedPnL != nil || !got[0].Timestamp.Equal(at) {
		t.Fatalf("trades = %+v err=%v", got, err)
	}

	_ = s.SaveDeadLetter(ctx, models.DeadLetter{ID: "1", Consumer: "telegram", FailedAt: at, Signal: models.Signal{ID: "sig"}})
	_ = s.SaveDeadLetter(ctx, models.DeadLetter{ID: "2", Consumer: "okx_orders", FailedAt: at.Add(time.Second)})
	tg, _ := s.DeadLetters(ctx, "telegram")
	if len(tg) != 1 || tg[0].Signal.ID != "sig" {
		t.Fatalf("telegram dead letters = %+v", tg)
	}
	if all, _ := s.DeadLetters(ctx, ""); len(all) != 2 {
		t.Fatalf("all dead letters = %d", len(all))
	}
}
