package models

import "time"

type DataRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DataRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// ExecutionModel describes how a quote becomes a fill. All values are fractions.
type ExecutionModel struct {
	Spread     float64 `json:"spread" yaml:"spread"`
	Slippage   float64 `json:"slippage" yaml:"slippage"`
	Commission float64 `json:"commission" yaml:"commission"`
}

func DefaultExecutionModel() ExecutionModel {
	return ExecutionModel{Spread: 0, Slippage: 0.001, Commission: 0.001}
}

// BacktestRun is returned complete or not at all.
type BacktestRun struct {
	ID              string            `json:"id"`
	Strategy        StrategyConfig    `json:"strategy"`
	Range           DataRange         `json:"range"`
	Execution       ExecutionModel    `json:"execution"`
	StartingBalance float64           `json:"starting_balance"`
	EndingBalance   float64           `json:"ending_balance"`
	EndingEquity    float64           `json:"ending_equity"`
	Candles         int               `json:"candles"`
	Skipped         int               `json:"skipped"`
	Ledger          []Trade           `json:"ledger"`
	Report          PerformanceReport `json:"report"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

type PerformanceReport struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     Ratio   `json:"profit_factor"`
	CalmarRatio      Ratio   `json:"calmar_ratio"`
	Trades           int     `json:"trades"`
	ClosedTrades     int     `json:"closed_trades"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	GrossProfit      float64 `json:"gross_profit"`
	GrossLoss        float64 `json:"gross_loss"`
	TotalFees        float64 `json:"total_fees"`
}

type BotStatus struct {
	Uptime           time.Duration        `json:"uptime"`
	ActiveStrategies int                  `json:"active_strategies"`
	ActiveSessions   int                  `json:"active_sessions"`
	LastSignalAt     time.Time            `json:"last_signal_at"`
	Heartbeats       map[string]time.Time `json:"heartbeats"`
	Stale            []string             `json:"stale"`
}
