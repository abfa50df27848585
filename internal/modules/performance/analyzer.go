// Package performance turns a trade ledger into a PerformanceReport.
// Everything here is pure: the same ledger always yields the same report.
package performance

import (
	"math"
	"sort"
	"time"

	"trade_engine/internal/models"
)

const year = 365.25 * 24 * time.Hour

type Options struct {
	// annual risk-free rate as a fraction
	RiskFreeRate float64
	// optional marks for positions still open after the last trade
	Marks map[string]float64
}

// EquityPoint is the account value right after a ledger entry.
type EquityPoint struct {
	At     time.Time
	Equity float64
}

// EquityCurve replays the ledger as cash plus holdings marked at the last
// traded price of each symbol. The first point is the starting balance.
func EquityCurve(ledger []models.Trade, startingBalance float64, marks map[string]float64) []EquityPoint {
	curve := make([]EquityPoint, 0, len(ledger)+2)
	if len(ledger) > 0 {
		curve = append(curve, EquityPoint{At: ledger[0].Timestamp, Equity: startingBalance})
	} else {
		curve = append(curve, EquityPoint{Equity: startingBalance})
	}

	cash := startingBalance
	qty := make(map[string]float64)
	last := make(map[string]float64)
	for _, t := range ledger {
		switch t.Side {
		case models.SideBuy:
			cash -= t.Notional() + t.Fees
		case models.SideSell:
			cash += t.Notional() - t.Fees
		}
		qty[t.Symbol] += t.SignedQuantity()
		last[t.Symbol] = t.Price
		curve = append(curve, EquityPoint{At: t.Timestamp, Equity: holdings(cash, qty, last)})
	}

	if len(marks) > 0 && len(ledger) > 0 {
		for sym, px := range marks {
			if px > 0 {
				last[sym] = px
			}
		}
		curve = append(curve, EquityPoint{At: ledger[len(ledger)-1].Timestamp, Equity: holdings(cash, qty, last)})
	}
	return curve
}

func holdings(cash float64, qty, last map[string]float64) float64 {
	syms := make([]string, 0, len(qty))
	for s := range qty {
		syms = append(syms, s)
	}
	// fixed summation order keeps the result bit-identical between runs
	sort.Strings(syms)
	eq := cash
	for _, s := range syms {
		eq += qty[s] * last[s]
	}
	return eq
}

// Analyze builds the report for ledger.
func Analyze(ledger []models.Trade, startingBalance float64, opts Options) models.PerformanceReport {
	r := models.PerformanceReport{Trades: len(ledger)}
	curve := EquityCurve(ledger, startingBalance, opts.Marks)
	final := curve[len(curve)-1].Equity

	if startingBalance > 0 {
		r.TotalReturn = (final - startingBalance) / startingBalance
	}

	var span time.Duration
	if len(ledger) > 1 {
		span = ledger[len(ledger)-1].Timestamp.Sub(ledger[0].Timestamp)
	}
	years := float64(span) / float64(year)
	r.AnnualizedReturn = annualize(r.TotalReturn, years)

	var returns []float64
	equity := startingBalance
	for i, t := range ledger {
		r.TotalFees += t.Fees
		if t.RealizedPnL != nil {
			pnl := *t.RealizedPnL
			r.ClosedTrades++
			switch {
			case pnl > 0:
				r.Wins++
				r.GrossProfit += pnl
			case pnl < 0:
				r.Losses++
				r.GrossLoss += -pnl
			}
			if equity > 0 {
				returns = append(returns, pnl/equity)
			}
		}
		equity = curve[i+1].Equity
	}

	if r.ClosedTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.ClosedTrades)
	}
	r.ProfitFactor = profitFactor(r.GrossProfit, r.GrossLoss)
	r.SharpeRatio = sharpe(returns, years, opts.RiskFreeRate)
	r.MaxDrawdown = maxDrawdown(curve)
	r.CalmarRatio = calmar(r.AnnualizedReturn, r.MaxDrawdown)
	return r
}

func annualize(total, years float64) float64 {
	if years <= 0 {
		return total
	}
	if 1+total <= 0 {
		return -1
	}
	return math.Pow(1+total, 1/years) - 1
}

func profitFactor(profit, loss float64) models.Ratio {
	switch {
	case loss > 0:
		return models.Ratio(profit / loss)
	case profit > 0:
		return models.Ratio(math.Inf(1))
	}
	return 0
}

// sharpe annualises the per-trade return series by the number of trades per
// year. A series shorter than two or with zero spread yields 0.
func sharpe(returns []float64, years, riskFree float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range returns {
		mean += v
	}
	mean /= float64(n)
	variance := 0.0
	for _, v := range returns {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n-1))
	if std == 0 {
		return 0
	}

	perYear := float64(n)
	if years > 0 {
		perYear = float64(n) / years
	}
	excess := mean - riskFree/perYear
	return excess / std * math.Sqrt(perYear)
}

// maxDrawdown is the largest peak-to-trough decline as a fraction of the peak.
func maxDrawdown(curve []EquityPoint) float64 {
	peak, dd := math.Inf(-1), 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if v := (peak - p.Equity) / peak; v > dd {
				dd = v
			}
		}
	}
	return dd
}

func calmar(annualized, drawdown float64) models.Ratio {
	if drawdown == 0 {
		return models.Ratio(math.Inf(1))
	}
	return models.Ratio(annualized / drawdown)
}

// Thresholds are benchmark floors and ceilings. A zero field is not checked.
type Thresholds struct {
	MinTotalReturn  float64 `json:"min_total_return" yaml:"min_total_return"`
	MinSharpe       float64 `json:"min_sharpe" yaml:"min_sharpe"`
	MaxDrawdown     float64 `json:"max_drawdown" yaml:"max_drawdown"`
	MinWinRate      float64 `json:"min_win_rate" yaml:"min_win_rate"`
	MinProfitFactor float64 `json:"min_profit_factor" yaml:"min_profit_factor"`
	MinCalmar       float64 `json:"min_calmar" yaml:"min_calmar"`
}

// Compare returns the names of the benchmarks the report fails, in a fixed order.
func Compare(r models.PerformanceReport, th Thresholds) []string {
	var failed []string
	check := func(name string, active, ok bool) {
		if active && !ok {
			failed = append(failed, name)
		}
	}
	check("total_return", th.MinTotalReturn != 0, r.TotalReturn >= th.MinTotalReturn)
	check("sharpe_ratio", th.MinSharpe != 0, r.SharpeRatio >= th.MinSharpe)
	check("max_drawdown", th.MaxDrawdown != 0, r.MaxDrawdown <= th.MaxDrawdown)
	check("win_rate", th.MinWinRate != 0, r.WinRate >= th.MinWinRate)
	check("profit_factor", th.MinProfitFactor != 0, float64(r.ProfitFactor) >= th.MinProfitFactor)
	check("calmar_ratio", th.MinCalmar != 0, float64(r.CalmarRatio) >= th.MinCalmar)
	return failed
}
