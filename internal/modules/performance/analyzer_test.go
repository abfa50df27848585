package performance

import (
	"math"
	"reflect"
	"testing"
	"time"

	"trade_engine/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func pnl(v float64) *float64 { return &v }

func roundTrip(at time.Time, entry, exit, qty, fee float64) []models.Trade {
	return []models.Trade{
		{Side: models.SideBuy, Symbol: "BTC-USDT", Quantity: qty, Price: entry, Fees: fee, Timestamp: at},
		{Side: models.SideSell, Symbol: "BTC-USDT", Quantity: qty, Price: exit, Fees: fee, Timestamp: at.Add(24 * time.Hour),
			RealizedPnL: pnl((exit-entry)*qty - fee)},
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSingleWinningTrade(t *testing.T) {
	r := Analyze(roundTrip(t0, 100, 110, 10, 1), 10000, Options{})
	if !near(r.TotalReturn, 0.0098) {
		t.Fatalf("total return = %v", r.TotalReturn)
	}
	if !near(r.MaxDrawdown, 0.0001) {
		t.Fatalf("max drawdown = %v", r.MaxDrawdown)
	}
	if r.WinRate != 1 || r.Wins != 1 || r.ClosedTrades != 1 || r.Trades != 2 {
		t.Fatalf("counts = %+v", r)
	}
	if !r.ProfitFactor.IsInf() {
		t.Fatalf("profit factor without losses = %v", r.ProfitFactor)
	}
	if r.SharpeRatio != 0 {
		t.Fatalf("sharpe with one return = %v", r.SharpeRatio)
	}
	if !near(r.TotalFees, 2) || !near(r.GrossProfit, 99) {
		t.Fatalf("fees=%v gross=%v", r.TotalFees, r.GrossProfit)
	}
}

func TestWinsAndLosses(t *testing.T) {
	ledger := append(roundTrip(t0, 100, 110, 10, 1), roundTrip(t0.Add(48*time.Hour), 110, 105, 10, 1)...)
	r := Analyze(ledger, 10000, Options{})
	if r.WinRate != 0.5 || r.Losses != 1 {
		t.Fatalf("report = %+v", r)
	}
	if !near(float64(r.ProfitFactor), 99.0/51.0) {
		t.Fatalf("profit factor = %v", r.ProfitFactor)
	}
	if r.SharpeRatio == 0 || math.IsNaN(r.SharpeRatio) {
		t.Fatalf("sharpe = %v", r.SharpeRatio)
	}
	if r.MaxDrawdown <= 0 || r.CalmarRatio.IsInf() {
		t.Fatalf("drawdown=%v calmar=%v", r.MaxDrawdown, r.CalmarRatio)
	}
}

func TestEmptyLedgerGuardsDivisions(t *testing.T) {
	r := Analyze(nil, 10000, Options{})
	if r.TotalReturn != 0 || r.MaxDrawdown != 0 || r.WinRate != 0 || r.ProfitFactor != 0 {
		t.Fatalf("report = %+v", r)
	}
	if !r.CalmarRatio.IsInf() {
		t.Fatalf("calmar with zero drawdown = %v", r.CalmarRatio)
	}
	if r := Analyze(nil, 0, Options{}); r.TotalReturn != 0 {
		t.Fatalf("zero balance total return = %v", r.TotalReturn)
	}
}

func TestOpenPositionMarkedAtMark(t *testing.T) {
	ledger := roundTrip(t0, 100, 110, 10, 0)[:1]
	r := Analyze(ledger, 10000, Options{Marks: map[string]float64{"BTC-USDT": 120}})
	if !near(r.TotalReturn, 0.02) {
		t.Fatalf("total return = %v", r.TotalReturn)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	ledger := append(roundTrip(t0, 100, 110, 10, 1), roundTrip(t0.Add(48*time.Hour), 110, 105, 10, 1)...)
	a := Analyze(ledger, 10000, Options{RiskFreeRate: 0.02})
	b := Analyze(ledger, 10000, Options{RiskFreeRate: 0.02})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("reports differ:\n%+v\n%+v", a, b)
	}
}

func TestCompare(t *testing.T) {
	r := models.PerformanceReport{TotalReturn: 0.1, SharpeRatio: 0.5, MaxDrawdown: 0.3, WinRate: 0.6, ProfitFactor: models.Ratio(math.Inf(1))}
	failed := Compare(r, Thresholds{MinTotalReturn: 0.05, MinSharpe: 1, MaxDrawdown: 0.2, MinProfitFactor: 1.5})
	want := []string{"sharpe_ratio", "max_drawdown"}
	if !reflect.DeepEqual(failed, want) {
		t.Fatalf("failed = %v, want %v", failed, want)
	}
	if got := Compare(r, Thresholds{}); len(got) != 0 {
		t.Fatalf("empty thresholds failed %v", got)
	}
}
