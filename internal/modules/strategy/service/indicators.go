package service

import (
	"trade_engine/internal/indicator"
	"trade_engine/internal/models"
)

const (
	seriesFast = "fast"
	seriesSlow = "slow"
)

type indicatorSpec struct {
	alias  string
	name   string
	params map[string]float64
}

// indicatorSpecs lists the series cfg's strategy reads.
func indicatorSpecs(cfg models.StrategyConfig) []indicatorSpec {
	period := func(p int) map[string]float64 { return map[string]float64{indicator.ParamPeriod: float64(p)} }
	same := func(name string, params map[string]float64) indicatorSpec {
		return indicatorSpec{alias: name, name: name, params: params}
	}

	switch cfg.Type {
	case models.StrategyMomentum:
		specs := []indicatorSpec{same(indicator.ROCName, period(cfg.IntParam(models.ParamLookbackPeriod, 10)))}
		if p := cfg.IntParam(models.ParamRSIPeriod, 0); p > 0 {
			specs = append(specs, same(indicator.RSIName, period(p)))
		}
		return specs
	case models.StrategyMeanReversion:
		bb := map[string]float64{
			indicator.ParamPeriod: float64(cfg.IntParam(models.ParamBollingerPeriod, 20)),
			indicator.ParamK:      cfg.Param(models.ParamBollingerK, 2),
		}
		return []indicatorSpec{
			same(indicator.BollingerUpperName, bb),
			same(indicator.BollingerMiddleName, bb),
			same(indicator.BollingerLowerName, bb),
			same(indicator.RSIName, period(cfg.IntParam(models.ParamRSIPeriod, 14))),
		}
	case models.StrategyTrendFollowing:
		return []indicatorSpec{
			{alias: seriesFast, name: indicator.SMAName, params: period(cfg.IntParam(models.ParamFastPeriod, 10))},
			{alias: seriesSlow, name: indicator.SMAName, params: period(cfg.IntParam(models.ParamSlowPeriod, 30))},
		}
	case models.StrategyScalping:
		return []indicatorSpec{
			{alias: seriesFast, name: indicator.EMAName, params: period(cfg.IntParam(models.ParamFastPeriod, 5))},
			{alias: seriesSlow, name: indicator.EMAName, params: period(cfg.IntParam(models.ParamSlowPeriod, 13))},
			same(indicator.MACDHistogramName, map[string]float64{
				indicator.ParamFast:   12,
				indicator.ParamSlow:   26,
				indicator.ParamSignal: float64(cfg.IntParam(models.ParamSignalPeriod, 9)),
			}),
		}
	case models.StrategyDCA:
		return []indicatorSpec{same(indicator.SMAName, period(cfg.IntParam(models.ParamInterval, 24)))}
	}
	return nil
}

// BuildIndicatorSet computes every series cfg's strategy reads over the
// whole window. A series that cannot be computed yet is left out and reads
// as NaN.
func BuildIndicatorSet(cfg models.StrategyConfig, window []models.Candle, reference float64) IndicatorSet {
	return buildIndicatorSet(cfg, window, reference, nil)
}

func buildIndicatorSet(cfg models.StrategyConfig, window []models.Candle, reference float64, rolled map[string]indicator.Series) IndicatorSet {
	specs := indicatorSpecs(cfg)
	set := IndicatorSet{
		Closes:    models.Closes(window),
		Volumes:   models.Volumes(window),
		Series:    make(map[string]indicator.Series, len(specs)),
		Reference: reference,
	}
	for _, sp := range specs {
		if s, ok := rolled[sp.alias]; ok {
			if s.Len() > 0 {
				set.Series[sp.alias] = s
			}
			continue
		}
		series, err := indicator.Compute(sp.name, set.Closes, sp.params)
		if err != nil {
			continue
		}
		set.Series[sp.alias] = series
	}
	return set
}

// Rolling is the incremental indicator state of one strategy on one candle
// sequence. SMA and RSI advance in O(1) per close; the other series are
// recomputed over the window. Push every close of the sequence in order.
type Rolling struct {
	cfg      models.StrategyConfig
	trackers map[string]*indicator.Tracker
}

func NewRolling(cfg models.StrategyConfig) *Rolling {
	r := &Rolling{cfg: cfg, trackers: make(map[string]*indicator.Tracker)}
	for _, sp := range indicatorSpecs(cfg) {
		if !indicator.Incremental(sp.name) {
			continue
		}
		if t, err := indicator.NewTracker(sp.name, sp.params); err == nil {
			r.trackers[sp.alias] = t
		}
	}
	return r
}

func (r *Rolling) Push(v float64) {
	for _, t := range r.trackers {
		t.Push(v)
	}
}

// Snapshot copies the tracked series aligned to a window of windowLen closes
// ending at the last pushed close.
func (r *Rolling) Snapshot(windowLen int) map[string]indicator.Series {
	out := make(map[string]indicator.Series, len(r.trackers))
	for alias, t := range r.trackers {
		out[alias] = t.Series(windowLen)
	}
	return out
}

// IndicatorSet builds the set for window, whose last candle must be the last
// one pushed.
func (r *Rolling) IndicatorSet(window []models.Candle, reference float64) IndicatorSet {
	return buildIndicatorSet(r.cfg, window, reference, r.Snapshot(len(window)))
}
