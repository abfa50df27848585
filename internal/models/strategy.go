package models

import (
	"fmt"
	"sort"
	"time"
)

type StrategyType string

const (
	StrategyMomentum       StrategyType = "momentum"
	StrategyMeanReversion  StrategyType = "mean_reversion"
	StrategyTrendFollowing StrategyType = "trend_following"
	StrategyScalping       StrategyType = "scalping"
	StrategyArbitrage      StrategyType = "arbitrage"
	StrategyGrid           StrategyType = "grid"
	StrategyDCA            StrategyType = "dca"
)

// StrategyTypes lists the closed set in a stable order.
var StrategyTypes = []StrategyType{
	StrategyMomentum,
	StrategyMeanReversion,
	StrategyTrendFollowing,
	StrategyScalping,
	StrategyArbitrage,
	StrategyGrid,
	StrategyDCA,
}

func (t StrategyType) Valid() bool {
	for _, v := range StrategyTypes {
		if v == t {
			return true
		}
	}
	return false
}

type RiskParameters struct {
	// fraction of balance lost if the stop is hit, 0.01 => 1%
	MaxRiskPerTrade float64 `json:"max_risk_per_trade" yaml:"max_risk_per_trade" mapstructure:"max_risk_per_trade"`
	// notional cap as a fraction of balance
	MaxPositionSize     float64 `json:"max_position_size" yaml:"max_position_size" mapstructure:"max_position_size"`
	MaxConcurrentTrades int     `json:"max_concurrent_trades" yaml:"max_concurrent_trades" mapstructure:"max_concurrent_trades"`
}

// StrategyConfig is immutable once built. A parameter change goes through
// WithParameters and yields the next revision.
type StrategyConfig struct {
	ID         string             `json:"id"`
	Revision   int                `json:"revision"`
	Type       StrategyType       `json:"type"`
	Exchange   string             `json:"exchange"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Parameters map[string]float64 `json:"parameters"`
	Risk       RiskParameters     `json:"risk"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (c StrategyConfig) Key() string { return fmt.Sprintf("%s@%d", c.ID, c.Revision) }

func (c StrategyConfig) Param(name string, def float64) float64 {
	if v, ok := c.Parameters[name]; ok {
		return v
	}
	return def
}

func (c StrategyConfig) IntParam(name string, def int) int {
	if v, ok := c.Parameters[name]; ok {
		return int(v)
	}
	return def
}

// WithParameters merges overrides into a copy and bumps the revision.
func (c StrategyConfig) WithParameters(overrides map[string]float64, at time.Time) StrategyConfig {
	next := c
	next.Parameters = make(map[string]float64, len(c.Parameters)+len(overrides))
	for k, v := range c.Parameters {
		next.Parameters[k] = v
	}
	for k, v := range overrides {
		next.Parameters[k] = v
	}
	next.Revision = c.Revision + 1
	next.CreatedAt = at
	return next
}

// ParamString renders parameters in key order; used in logs and run labels.
func (c StrategyConfig) ParamString() string {
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%g", k, c.Parameters[k])
	}
	return s
}
