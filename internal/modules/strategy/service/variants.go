package service

import (
	"math"

	"trade_engine/internal/indicator"
	"trade_engine/internal/models"
)

// momentum buys a rising rate of change above the threshold and exits when
// it falls below the negative threshold.
func momentum(cfg models.StrategyConfig, window []models.Candle, set IndicatorSet, pos PositionContext) decision {
	lookback := cfg.IntParam(models.ParamLookbackPeriod, 10)
	threshold := cfg.Param(models.ParamMomentumThreshold, 0.02)
	if len(window) < lookback+2 {
		return none()
	}
	roc := set.Value(indicator.ROCName, 0)
	prev := set.Value(indicator.ROCName, 1)
	if anyNaN(roc, prev) {
		return none()
	}
	basis := map[string]float64{"roc": roc, "roc_prev": prev}

	if pos.InPosition && roc <= -threshold {
		return decision{action: models.ActionSell, confidence: -roc / (2 * threshold), basis: basis}
	}
	if roc < threshold || roc <= prev {
		return none()
	}
	if cfg.IntParam(models.ParamRSIPeriod, 0) > 0 {
		rsi := set.Value(indicator.RSIName, 0)
		if math.IsNaN(rsi) || rsi <= 50 {
			return none()
		}
		basis["rsi"] = rsi
	}
	if cfg.Param(models.ParamVolumeFilter, 0) >= 1 {
		vols := set.Volumes
		avg := 0.0
		for _, v := range vols[len(vols)-1-lookback : len(vols)-1] {
			avg += v
		}
		avg /= float64(lookback)
		last := vols[len(vols)-1]
		if last <= avg {
			return none()
		}
		basis["volume"] = last
		basis["volume_avg"] = avg
	}
	return decision{action: models.ActionBuy, confidence: roc / (2 * threshold), basis: basis}
}

// meanReversion buys an oversold close at or under the lower band and exits
// at the middle band or when overbought.
func meanReversion(cfg models.StrategyConfig, _ []models.Candle, set IndicatorSet, pos PositionContext) decision {
	oversold := cfg.Param(models.ParamOversold, 30)
	overbought := cfg.Param(models.ParamOverbought, 70)
	upper := set.Value(indicator.BollingerUpperName, 0)
	middle := set.Value(indicator.BollingerMiddleName, 0)
	lower := set.Value(indicator.BollingerLowerName, 0)
	rsi := set.Value(indicator.RSIName, 0)
	closep := set.Close(0)
	if anyNaN(upper, middle, lower, rsi, closep) {
		return none()
	}
	basis := map[string]float64{"upper": upper, "middle": middle, "lower": lower, "rsi": rsi}

	if pos.InPosition {
		if closep >= middle || rsi > overbought {
			return decision{action: models.ActionSell, confidence: rsi / 100, basis: basis}
		}
		return none()
	}
	if closep <= lower && rsi < oversold {
		return decision{action: models.ActionBuy, confidence: (oversold - rsi) / oversold, basis: basis}
	}
	return none()
}

// trendFollowing trades fast/slow SMA crossovers.
func trendFollowing(_ models.StrategyConfig, _ []models.Candle, set IndicatorSet, pos PositionContext) decision {
	fast, fastPrev := set.Value(seriesFast, 0), set.Value(seriesFast, 1)
	slow, slowPrev := set.Value(seriesSlow, 0), set.Value(seriesSlow, 1)
	closep := set.Close(0)
	if anyNaN(fast, fastPrev, slow, slowPrev, closep) || slow == 0 {
		return none()
	}
	basis := map[string]float64{"fast": fast, "slow": slow}
	gap := math.Abs(fast-slow) / slow

	switch {
	case !pos.InPosition && fastPrev <= slowPrev && fast > slow && closep > slow:
		return decision{action: models.ActionBuy, confidence: gap / 0.01, basis: basis}
	case pos.InPosition && fastPrev >= slowPrev && fast < slow:
		return decision{action: models.ActionSell, confidence: gap / 0.01, basis: basis}
	}
	return none()
}

// scalping rides a short EMA trend confirmed by a rising MACD histogram and
// takes profit early.
func scalping(_ models.StrategyConfig, _ []models.Candle, set IndicatorSet, pos PositionContext, takeProfitPct float64) decision {
	fast, slow := set.Value(seriesFast, 0), set.Value(seriesSlow, 0)
	hist, histPrev := set.Value(indicator.MACDHistogramName, 0), set.Value(indicator.MACDHistogramName, 1)
	closep := set.Close(0)
	if anyNaN(fast, slow, hist, histPrev, closep) {
		return none()
	}
	basis := map[string]float64{"fast": fast, "slow": slow, "histogram": hist}

	if pos.InPosition {
		if pos.EntryPrice > 0 && closep >= pos.EntryPrice*(1+takeProfitPct/100) {
			return decision{action: models.ActionSell, confidence: 1, basis: basis}
		}
		if fast < slow {
			return decision{action: models.ActionSell, confidence: 0.5, basis: basis}
		}
		return none()
	}
	if fast > slow && hist > 0 && hist > histPrev {
		conf := 0.5
		if closep > 0 {
			conf += (fast - slow) / closep * 100
		}
		return decision{action: models.ActionBuy, confidence: conf, basis: basis}
	}
	return none()
}

// arbitrage buys when another venue quotes the instrument higher by at least
// the spread threshold and sells once the gap reverses.
func arbitrage(cfg models.StrategyConfig, _ []models.Candle, set IndicatorSet, pos PositionContext) decision {
	threshold := cfg.Param(models.ParamSpreadThreshold, 0.005)
	ref := cfg.Param(models.ParamReferencePrice, 0)
	if ref <= 0 {
		ref = set.Reference
	}
	closep := set.Close(0)
	if ref <= 0 || math.IsNaN(closep) || closep <= 0 || threshold <= 0 {
		return none()
	}
	basis := map[string]float64{"reference": ref}

	if !pos.InPosition {
		if gap := (ref - closep) / closep; gap >= threshold {
			basis["spread"] = gap
			return decision{action: models.ActionBuy, confidence: gap / (2 * threshold), basis: basis}
		}
		return none()
	}
	if gap := (closep - ref) / ref; gap >= threshold {
		basis["spread"] = gap
		return decision{action: models.ActionSell, confidence: gap / (2 * threshold), basis: basis}
	}
	return none()
}

// grid buys each time the close crosses down through a level and sells when
// it crosses up through a level above the entry.
func grid(cfg models.StrategyConfig, _ []models.Candle, set IndicatorSet, pos PositionContext) decision {
	lower := cfg.Param(models.ParamGridLower, 0)
	upper := cfg.Param(models.ParamGridUpper, 0)
	levels := cfg.IntParam(models.ParamGridLevels, 10)
	closep, prev := set.Close(0), set.Close(1)
	if anyNaN(closep, prev) || lower <= 0 || upper <= lower || levels < 1 {
		return none()
	}
	step := (upper - lower) / float64(levels)

	for i := 0; i <= levels; i++ {
		level := lower + float64(i)*step
		if pos.InPosition && prev < level && closep >= level && level > pos.EntryPrice {
			basis := map[string]float64{"level": level, "step": step}
			return decision{action: models.ActionSell, confidence: float64(i) / float64(levels), basis: basis}
		}
	}
	for i := levels; i >= 0; i-- {
		level := lower + float64(i)*step
		if prev > level && closep <= level {
			basis := map[string]float64{"level": level, "step": step}
			return decision{action: models.ActionBuy, confidence: 1 - float64(i)/float64(levels), basis: basis}
		}
	}
	return none()
}

// dca buys on a fixed candle cadence, or early on a dip below the SMA of the
// interval, and takes profit at the target.
func dca(cfg models.StrategyConfig, window []models.Candle, set IndicatorSet, pos PositionContext, takeProfitPct float64) decision {
	interval := cfg.IntParam(models.ParamInterval, 24)
	drop := cfg.Param(models.ParamDropThreshold, 0)
	closep := set.Close(0)
	if interval < 1 || math.IsNaN(closep) {
		return none()
	}

	if pos.InPosition && pos.EntryPrice > 0 && closep >= pos.EntryPrice*(1+takeProfitPct/100) {
		return decision{action: models.ActionSell, confidence: 1, basis: map[string]float64{"entry": pos.EntryPrice}}
	}

	if onCadence(window, interval) {
		return decision{action: models.ActionBuy, confidence: 0.5, basis: map[string]float64{"interval": float64(interval)}}
	}
	if drop > 0 {
		sma := set.Value(indicator.SMAName, 0)
		if !math.IsNaN(sma) && sma > 0 {
			if fall := (sma - closep) / sma; fall >= drop {
				return decision{action: models.ActionBuy, confidence: fall / (2 * drop), basis: map[string]float64{"sma": sma, "drop": fall}}
			}
		}
	}
	return none()
}

// onCadence is true on every interval-th candle counted from the epoch, so
// live and replayed windows agree regardless of window length. Candles of an
// unknown width are never on cadence.
func onCadence(window []models.Candle, interval int) bool {
	last := window[len(window)-1]
	width := models.TimeframeDuration(last.Timeframe)
	if width <= 0 {
		return false
	}
	idx := last.Start.UnixNano() / int64(width)
	return idx%int64(interval) == 0
}
