package indicator

import "math"

// SMA returns len(values)-period+1 means, one per full window.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	for i := period; i <= len(values); i++ {
		out = append(out, mean(values[i-period:i]))
	}
	return out
}

// StdDev is the population standard deviation of every full window.
func StdDev(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	for i := period; i <= len(values); i++ {
		w := values[i-period : i]
		out = append(out, stddev(w, mean(w)))
	}
	return out
}

func mean(w []float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum / float64(len(w))
}

func stddev(w []float64, m float64) float64 {
	sq := 0.0
	for _, v := range w {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(w)))
}
