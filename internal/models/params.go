package models

import "strings"

// Parameter names understood by the strategy evaluators.
const (
	ParamLookbackPeriod    = "lookbackPeriod"
	ParamMomentumThreshold = "momentumThreshold"
	ParamRSIPeriod         = "rsiPeriod"
	ParamVolumeFilter      = "volumeFilter"
	ParamBollingerPeriod   = "bollingerPeriod"
	ParamBollingerK        = "bollingerK"
	ParamOversold          = "oversold"
	ParamOverbought        = "overbought"
	ParamFastPeriod        = "fastPeriod"
	ParamSlowPeriod        = "slowPeriod"
	ParamSignalPeriod      = "signalPeriod"
	ParamReferencePrice    = "referencePrice"
	ParamSpreadThreshold   = "spreadThreshold"
	ParamGridLower         = "gridLower"
	ParamGridUpper         = "gridUpper"
	ParamGridLevels        = "gridLevels"
	ParamInterval          = "interval"
	ParamDropThreshold     = "dropThreshold"
	ParamStopLossPct       = "stopLossPct"
	ParamTakeProfitPct     = "takeProfitPct"
)

var knownParams = []string{
	ParamLookbackPeriod, ParamMomentumThreshold, ParamRSIPeriod, ParamVolumeFilter,
	ParamBollingerPeriod, ParamBollingerK, ParamOversold, ParamOverbought,
	ParamFastPeriod, ParamSlowPeriod, ParamSignalPeriod, ParamReferencePrice,
	ParamSpreadThreshold, ParamGridLower, ParamGridUpper, ParamGridLevels,
	ParamInterval, ParamDropThreshold, ParamStopLossPct, ParamTakeProfitPct,
}

// CanonicalParam maps a case-folded or snake_case name back to its canonical form.
func CanonicalParam(name string) string {
	folded := strings.ReplaceAll(strings.ToLower(name), "_", "")
	for _, k := range knownParams {
		if strings.ToLower(k) == folded {
			return k
		}
	}
	return name
}
