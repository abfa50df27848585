package indicator

// MACDResult holds the three MACD lines. Line starts at input index slow-1,
// Signal and Histogram at slow+signal-2.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

func MACD(values []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDResult{}
	}
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	if emaSlow == nil {
		return MACDResult{}
	}
	shift := slow - fast
	line := make([]float64, len(emaSlow))
	for i := range emaSlow {
		line[i] = emaFast[i+shift] - emaSlow[i]
	}
	res := MACDResult{Line: line}
	sig := EMA(line, signal)
	if sig == nil {
		return res
	}
	res.Signal = sig
	res.Histogram = make([]float64, len(sig))
	for i := range sig {
		res.Histogram[i] = line[i+signal-1] - sig[i]
	}
	return res
}
