package indicator

// EMA is seeded with the SMA of the first period values, so its first value
// aligns with input index period-1.
func EMA(values []float64, period int) []float64 {
	seed := SMA(values[:min(len(values), period)], period)
	if seed == nil {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1)
	out := make([]float64, 0, len(values)-period+1)
	prev := seed[0]
	out = append(out, prev)
	for _, v := range values[period:] {
		prev = alpha*v + (1-alpha)*prev
		out = append(out, prev)
	}
	return out
}
