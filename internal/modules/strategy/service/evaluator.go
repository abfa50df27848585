package service

import (
	"math"
	"time"

	"github.com/google/uuid"

	"trade_engine/internal/indicator"
	"trade_engine/internal/models"
)

// PositionContext is what the caller knows about the strategy's open position.
type PositionContext struct {
	InPosition bool
	EntryPrice float64
	Quantity   float64
}

// Defaults fill stop-loss and take-profit when a strategy does not set them.
// Both are percent of price, 1.0 => 1%.
type Defaults struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// Evaluator is stateless and safe for concurrent use.
type Evaluator struct {
	defaults Defaults
	newID    func() string
}

func NewEvaluator(d Defaults) *Evaluator {
	if d.StopLossPct <= 0 {
		d.StopLossPct = 1
	}
	if d.TakeProfitPct <= 0 {
		d.TakeProfitPct = 2
	}
	return &Evaluator{defaults: d, newID: uuid.NewString}
}

// Evaluate returns a signal and true when the strategy wants to act on the
// last candle of window. Missing indicator values never produce a signal.
func (e *Evaluator) Evaluate(cfg models.StrategyConfig, window []models.Candle, set IndicatorSet, pos PositionContext) (models.Signal, bool) {
	if len(window) == 0 {
		return models.Signal{}, false
	}
	var d decision
	switch cfg.Type {
	case models.StrategyMomentum:
		d = momentum(cfg, window, set, pos)
	case models.StrategyMeanReversion:
		d = meanReversion(cfg, window, set, pos)
	case models.StrategyTrendFollowing:
		d = trendFollowing(cfg, window, set, pos)
	case models.StrategyScalping:
		d = scalping(cfg, window, set, pos, e.takeProfitPct(cfg))
	case models.StrategyArbitrage:
		d = arbitrage(cfg, window, set, pos)
	case models.StrategyGrid:
		d = grid(cfg, window, set, pos)
	case models.StrategyDCA:
		d = dca(cfg, window, set, pos, e.takeProfitPct(cfg))
	default:
		return models.Signal{}, false
	}
	if d.action == models.ActionNone {
		return models.Signal{}, false
	}
	return e.signal(cfg, window[len(window)-1], d), true
}

type decision struct {
	action     models.Action
	confidence float64
	basis      map[string]float64
}

func none() decision { return decision{action: models.ActionNone} }

func (e *Evaluator) stopLossPct(cfg models.StrategyConfig) float64 {
	return cfg.Param(models.ParamStopLossPct, e.defaults.StopLossPct)
}

func (e *Evaluator) takeProfitPct(cfg models.StrategyConfig) float64 {
	return cfg.Param(models.ParamTakeProfitPct, e.defaults.TakeProfitPct)
}

func (e *Evaluator) signal(cfg models.StrategyConfig, last models.Candle, d decision) models.Signal {
	price := last.Close
	s := models.Signal{
		ID:             e.newID(),
		StrategyID:     cfg.ID,
		Revision:       cfg.Revision,
		Exchange:       last.Exchange,
		Symbol:         last.Symbol,
		Action:         d.action,
		Confidence:     clip01(d.confidence),
		SuggestedPrice: price,
		GeneratedAt:    generatedAt(last),
		Basis:          d.basis,
	}
	if d.action == models.ActionBuy {
		s.StopLoss = price * (1 - e.stopLossPct(cfg)/100)
		s.TakeProfit = price * (1 + e.takeProfitPct(cfg)/100)
	}
	return s
}

// generatedAt is the close time of the candle, so replays stamp identical times.
func generatedAt(c models.Candle) time.Time {
	return c.End()
}

func clip01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// IndicatorSet holds the series a strategy needs, aligned to the window.
type IndicatorSet struct {
	Closes  []float64
	Volumes []float64
	Series  map[string]indicator.Series
	// Reference is the latest price of the same instrument on another venue.
	Reference float64
}

// Value returns the series value back candles before the newest, NaN if missing.
func (s IndicatorSet) Value(name string, back int) float64 {
	series, ok := s.Series[name]
	if !ok {
		return math.NaN()
	}
	return series.At(len(s.Closes) - 1 - back)
}

func (s IndicatorSet) Close(back int) float64 {
	i := len(s.Closes) - 1 - back
	if i < 0 || back < 0 {
		return math.NaN()
	}
	return s.Closes[i]
}
