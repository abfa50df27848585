package models

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// TransientFeedError is retried inside the feed and never reaches strategy code.
type TransientFeedError struct {
	Exchange string
	Op       string
	Status   int
	Err      error
}

func (e *TransientFeedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("feed %s %s: http %d: %v", e.Exchange, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("feed %s %s: %v", e.Exchange, e.Op, e.Err)
}

func (e *TransientFeedError) Unwrap() error { return e.Err }

// InsufficientDataError means the series is shorter than the indicator lookback.
type InsufficientDataError struct {
	Indicator string
	Required  int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need %d points, got %d", e.Indicator, e.Required, e.Got)
}

// RiskRejection suppresses dispatch; it is counted, never surfaced.
type RiskRejection struct {
	Reason     string
	StrategyID string
	Symbol     string
}

func (e *RiskRejection) Error() string {
	return fmt.Sprintf("risk rejected %s/%s: %s", e.StrategyID, e.Symbol, e.Reason)
}

// BacktestTimeoutError aborts a single run; its partial ledger is discarded.
type BacktestTimeoutError struct {
	StrategyID string
	Limit      time.Duration
	Processed  int
}

func (e *BacktestTimeoutError) Error() string {
	return fmt.Sprintf("backtest %s exceeded %s after %d candles", e.StrategyID, e.Limit, e.Processed)
}

// ConfigurationError is raised at strategy load time, before evaluation.
type ConfigurationError struct {
	StrategyID string
	Field      string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.StrategyID == "" {
		return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("strategy %s: %s: %s", e.StrategyID, e.Field, e.Reason)
}

func IsTransientFeed(err error) bool {
	var e *TransientFeedError
	return errors.As(err, &e)
}

func IsInsufficientData(err error) bool {
	var e *InsufficientDataError
	return errors.As(err, &e)
}

func IsRiskRejection(err error) bool {
	var e *RiskRejection
	return errors.As(err, &e)
}

func IsBacktestTimeout(err error) bool {
	var e *BacktestTimeoutError
	return errors.As(err, &e)
}

func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
