package service

import (
	"fmt"

	"trade_engine/internal/models"
)

// Validate rejects a strategy before it is ever evaluated.
func Validate(cfg models.StrategyConfig) error {
	bad := func(field, reason string) error {
		return &models.ConfigurationError{StrategyID: cfg.ID, Field: field, Reason: reason}
	}
	if cfg.ID == "" {
		return bad("id", "required")
	}
	if !cfg.Type.Valid() {
		return bad("type", fmt.Sprintf("unknown strategy type %q", cfg.Type))
	}
	if cfg.Exchange == "" || cfg.Symbol == "" || cfg.Timeframe == "" {
		return bad("stream", "exchange, symbol and timeframe are required")
	}
	if models.TimeframeDuration(cfg.Timeframe) <= 0 {
		return bad("timeframe", fmt.Sprintf("unsupported timeframe %q", cfg.Timeframe))
	}
	r := cfg.Risk
	if r.MaxRiskPerTrade <= 0 || r.MaxRiskPerTrade > 1 {
		return bad("risk.max_risk_per_trade", "must be in (0, 1]")
	}
	if r.MaxPositionSize <= 0 || r.MaxPositionSize > 1 {
		return bad("risk.max_position_size", "must be in (0, 1]")
	}
	if r.MaxConcurrentTrades < 1 {
		return bad("risk.max_concurrent_trades", "must be at least 1")
	}
	for _, name := range []string{models.ParamStopLossPct, models.ParamTakeProfitPct} {
		if v, ok := cfg.Parameters[name]; ok && (v <= 0 || v >= 100) {
			return bad(name, "must be in (0, 100)")
		}
	}

	positive := func(name string, def int) error {
		if cfg.IntParam(name, def) < 1 {
			return bad(name, "must be a positive period")
		}
		return nil
	}
	var err error
	switch cfg.Type {
	case models.StrategyMomentum:
		err = positive(models.ParamLookbackPeriod, 10)
		if err == nil && cfg.Param(models.ParamMomentumThreshold, 0.02) <= 0 {
			err = bad(models.ParamMomentumThreshold, "must be positive")
		}
		if err == nil && cfg.IntParam(models.ParamRSIPeriod, 0) < 0 {
			err = bad(models.ParamRSIPeriod, "must not be negative")
		}
	case models.StrategyMeanReversion:
		err = firstErr(positive(models.ParamBollingerPeriod, 20), positive(models.ParamRSIPeriod, 14))
		if err == nil && cfg.Param(models.ParamOversold, 30) >= cfg.Param(models.ParamOverbought, 70) {
			err = bad(models.ParamOversold, "must be below overbought")
		}
	case models.StrategyTrendFollowing:
		err = firstErr(positive(models.ParamFastPeriod, 10), positive(models.ParamSlowPeriod, 30))
		if err == nil && cfg.IntParam(models.ParamFastPeriod, 10) >= cfg.IntParam(models.ParamSlowPeriod, 30) {
			err = bad(models.ParamFastPeriod, "must be below slowPeriod")
		}
	case models.StrategyScalping:
		err = firstErr(positive(models.ParamFastPeriod, 5), positive(models.ParamSlowPeriod, 13), positive(models.ParamSignalPeriod, 9))
		if err == nil && cfg.IntParam(models.ParamFastPeriod, 5) >= cfg.IntParam(models.ParamSlowPeriod, 13) {
			err = bad(models.ParamFastPeriod, "must be below slowPeriod")
		}
	case models.StrategyArbitrage:
		if cfg.Param(models.ParamSpreadThreshold, 0.005) <= 0 {
			err = bad(models.ParamSpreadThreshold, "must be positive")
		}
	case models.StrategyGrid:
		lower, upper := cfg.Param(models.ParamGridLower, 0), cfg.Param(models.ParamGridUpper, 0)
		if lower <= 0 || upper <= lower {
			err = bad(models.ParamGridLower, "need 0 < gridLower < gridUpper")
		} else {
			err = positive(models.ParamGridLevels, 10)
		}
	case models.StrategyDCA:
		err = positive(models.ParamInterval, 24)
		if err == nil && cfg.Param(models.ParamDropThreshold, 0) < 0 {
			err = bad(models.ParamDropThreshold, "must not be negative")
		}
	}
	return err
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
