package indicator

type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger bands around SMA(period) at k population deviations of the same window.
func Bollinger(values []float64, period int, k float64) Bands {
	if period <= 0 || len(values) < period {
		return Bands{}
	}
	n := len(values) - period + 1
	b := Bands{
		Upper:  make([]float64, 0, n),
		Middle: make([]float64, 0, n),
		Lower:  make([]float64, 0, n),
	}
	for i := period; i <= len(values); i++ {
		w := values[i-period : i]
		m := mean(w)
		sd := stddev(w, m)
		b.Upper = append(b.Upper, m+k*sd)
		b.Middle = append(b.Middle, m)
		b.Lower = append(b.Lower, m-k*sd)
	}
	return b
}
