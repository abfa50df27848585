package indicator

import "math"

// ROC is the fractional rate of change over lookback candles:
// (v[t] - v[t-lookback]) / v[t-lookback].
func ROC(values []float64, lookback int) []float64 {
	if lookback <= 0 || len(values) < lookback+1 {
		return nil
	}
	out := make([]float64, 0, len(values)-lookback)
	for i := lookback; i < len(values); i++ {
		base := values[i-lookback]
		if base == 0 {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, (values[i]-base)/base)
	}
	return out
}
