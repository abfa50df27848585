package service

import (
	"context"
	"errors"
	"iter"
	"math"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"trade_engine/internal/models"
	risk "trade_engine/internal/modules/risk/service"
	strategy "trade_engine/internal/modules/strategy/service"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candles(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		out[i] = models.Candle{
			Exchange: "okx", Symbol: "BTC-USDT", Timeframe: "1h",
			Start: t0.Add(time.Duration(i) * time.Hour),
			Open:  prev, High: math.Max(prev, c), Low: math.Min(prev, c), Close: c, Volume: 1,
		}
		prev = c
	}
	return out
}

// buy at 102, take profit, buy at 106, stopped out
var scenario = []float64{100, 100, 100, 100, 100, 102, 105, 106, 103, 103}

func momentumConfig() models.StrategyConfig {
	return models.StrategyConfig{
		ID: "btc-momentum", Revision: 1, Type: models.StrategyMomentum,
		Exchange: "okx", Symbol: "BTC-USDT", Timeframe: "1h",
		Parameters: map[string]float64{models.ParamLookbackPeriod: 4, models.ParamMomentumThreshold: 0.02},
		Risk:       models.RiskParameters{MaxRiskPerTrade: 0.005, MaxPositionSize: 1, MaxConcurrentTrades: 1},
	}
}

func newSimulator(opts Options) *Simulator {
	return NewSimulator(strategy.NewEvaluator(strategy.Defaults{}), risk.NewManager(), opts)
}

func TestRunScenario(t *testing.T) {
	sim := newSimulator(Options{})
	run, err := sim.Run(context.Background(), momentumConfig(), SliceSource(candles(scenario...)), models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}

	var reasons []string
	net := 0.0
	for i, tr := range run.Ledger {
		reasons = append(reasons, tr.Reason)
		net += tr.SignedQuantity()
		if want := "t-00000" + string(rune('1'+i)); tr.ID != want {
			t.Fatalf("trade %d id = %s, want %s", i, tr.ID, want)
		}
	}
	want := []string{reasonSignal, ReasonTakeProfit, reasonSignal, ReasonStopLoss}
	if !reflect.DeepEqual(reasons, want) {
		t.Fatalf("reasons = %v, want %v", reasons, want)
	}
	if math.Abs(net) > 1e-9 {
		t.Fatalf("net quantity = %v, position should be flat", net)
	}
	if run.Report.Wins != 1 || run.Report.Losses != 1 || run.Candles != len(scenario) {
		t.Fatalf("report = %+v candles=%d", run.Report, run.Candles)
	}
	if tp := run.Ledger[1]; math.Abs(tp.QuotePrice-104.04) > 1e-9 {
		t.Fatalf("take profit quote = %v", tp.QuotePrice)
	}
	if run.EndingBalance != run.EndingEquity {
		t.Fatalf("flat run: balance %v != equity %v", run.EndingBalance, run.EndingEquity)
	}
}

func TestFillsMoveAgainstTrader(t *testing.T) {
	model := models.ExecutionModel{Spread: 0.002, Slippage: 0.001, Commission: 0.001}
	sim := newSimulator(Options{})
	run, err := sim.Run(context.Background(), momentumConfig(), SliceSource(candles(scenario...)), model, 10000)
	if err != nil {
		t.Fatal(err)
	}
	adverse := model.Slippage + model.Spread/2
	for _, tr := range run.Ledger {
		switch tr.Side {
		case models.SideBuy:
			if tr.Price < tr.QuotePrice*(1+adverse)-1e-9 {
				t.Fatalf("buy filled too cheap: %+v", tr)
			}
		case models.SideSell:
			if tr.Price > tr.QuotePrice*(1-adverse)+1e-9 {
				t.Fatalf("sell filled too high: %+v", tr)
			}
		}
		if math.Abs(tr.Fees-tr.Price*tr.Quantity*model.Commission) > 1e-9 {
			t.Fatalf("fees = %v", tr.Fees)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	src := SliceSource(candles(scenario...))
	a, err := newSimulator(Options{}).Run(context.Background(), momentumConfig(), src, models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newSimulator(Options{}).Run(context.Background(), momentumConfig(), src, models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Ledger, b.Ledger) || !reflect.DeepEqual(a.Report, b.Report) {
		t.Fatalf("runs differ")
	}
}

type slowSource struct {
	candles []models.Candle
	delay   time.Duration
	active  *atomic.Int32
	peak    *atomic.Int32
}

func (s slowSource) Candles(ctx context.Context) iter.Seq2[models.Candle, error] {
	return func(yield func(models.Candle, error) bool) {
		if s.active != nil {
			n := s.active.Add(1)
			defer s.active.Add(-1)
			for {
				p := s.peak.Load()
				if n <= p || s.peak.CompareAndSwap(p, n) {
					break
				}
			}
		}
		for _, c := range s.candles {
			time.Sleep(s.delay)
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestTimeoutDiscardsRun(t *testing.T) {
	sim := newSimulator(Options{MaxDuration: 20 * time.Millisecond})
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	src := slowSource{candles: candles(closes...), delay: 2 * time.Millisecond}
	run, err := sim.Run(context.Background(), momentumConfig(), src, models.DefaultExecutionModel(), 10000)
	if run != nil {
		t.Fatalf("a timed out run must not be returned")
	}
	var te *models.BacktestTimeoutError
	if !errors.As(err, &te) || te.Processed == 0 || te.Processed >= len(closes) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := newSimulator(Options{}).Run(ctx, momentumConfig(), SliceSource(candles(scenario...)), models.DefaultExecutionModel(), 10000)
	if run != nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("run=%v err=%v", run, err)
	}
}

func TestInvalidConfigRejectedBeforeReplay(t *testing.T) {
	cfg := momentumConfig()
	cfg.Risk.MaxConcurrentTrades = 0
	_, err := newSimulator(Options{}).Run(context.Background(), cfg, SliceSource(candles(scenario...)), models.DefaultExecutionModel(), 10000)
	if !models.IsConfiguration(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestSourceErrorDiscardsRun(t *testing.T) {
	_, err := newSimulator(Options{}).Run(context.Background(), momentumConfig(), failingSource{}, models.DefaultExecutionModel(), 10000)
	if err == nil {
		t.Fatalf("expected error")
	}
}

type failingSource struct{}

func (failingSource) Candles(context.Context) iter.Seq2[models.Candle, error] {
	return func(yield func(models.Candle, error) bool) {
		yield(models.Candle{}, errors.New("history unavailable"))
	}
}

func TestFillPrice(t *testing.T) {
	m := models.ExecutionModel{Spread: 0.002, Slippage: 0.001}
	if got := FillPrice(100, models.SideBuy, m); math.Abs(got-100.2) > 1e-9 {
		t.Fatalf("buy = %v", got)
	}
	if got := FillPrice(100, models.SideSell, m); math.Abs(got-99.8) > 1e-9 {
		t.Fatalf("sell = %v", got)
	}
}

func TestDCACadenceOnSixHourCandles(t *testing.T) {
	series := make([]models.Candle, 40)
	for i := range series {
		series[i] = models.Candle{
			Exchange: "okx", Symbol: "BTC-USDT", Timeframe: "6h",
			Start: t0.Add(time.Duration(i) * 6 * time.Hour),
			Open:  100, High: 100, Low: 100, Close: 100, Volume: 1,
		}
	}
	cfg := models.StrategyConfig{
		ID: "btc-dca", Revision: 1, Type: models.StrategyDCA,
		Exchange: "okx", Symbol: "BTC-USDT", Timeframe: "6h",
		Parameters: map[string]float64{models.ParamInterval: 5},
		Risk:       models.RiskParameters{MaxRiskPerTrade: 0.001, MaxPositionSize: 0.5, MaxConcurrentTrades: 100},
	}
	run, err := newSimulator(Options{WindowSize: 10}).Run(context.Background(), cfg, SliceSource(series), models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	buys := 0
	for _, tr := range run.Ledger {
		if tr.Side == models.SideBuy {
			buys++
		}
	}
	// every fifth 6h bar counted from the epoch
	if buys != 8 {
		t.Fatalf("buys = %d, want 8", buys)
	}
}

func TestOutOfOrderCandlesAreCounted(t *testing.T) {
	series := candles(scenario...)
	series = append(series, series[3], models.Candle{Symbol: "BTC-USDT"})
	run, err := newSimulator(Options{}).Run(context.Background(), momentumConfig(), SliceSource(series), models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if run.Candles != len(scenario) || run.Skipped != 2 {
		t.Fatalf("candles = %d skipped = %d", run.Candles, run.Skipped)
	}
}

func TestGapThroughStopFillsAtOpen(t *testing.T) {
	series := candles(scenario[:8]...)
	// the bar after the second entry opens below its stop
	series = append(series, models.Candle{
		Exchange: "okx", Symbol: "BTC-USDT", Timeframe: "1h",
		Start: t0.Add(8 * time.Hour),
		Open:  95, High: 96, Low: 94, Close: 95, Volume: 1,
	})
	run, err := newSimulator(Options{}).Run(context.Background(), momentumConfig(), SliceSource(series), models.DefaultExecutionModel(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	last := run.Ledger[len(run.Ledger)-1]
	if last.Reason != ReasonStopLoss || last.QuotePrice != 95 {
		t.Fatalf("exit = %+v", last)
	}
}
