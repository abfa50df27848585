package indicator

// RollingSMA keeps a running sum over a fixed ring of values. The sum is
// rebuilt from the ring once per period so rounding error cannot accumulate.
type RollingSMA struct {
	period int
	buf    []float64
	next   int
	count  int
	sum    float64
}

func NewRollingSMA(period int) *RollingSMA {
	if period < 1 {
		period = 1
	}
	return &RollingSMA{period: period, buf: make([]float64, period)}
}

func (r *RollingSMA) Push(v float64) {
	if r.count == r.period {
		r.sum -= r.buf[r.next]
	} else {
		r.count++
	}
	r.buf[r.next] = v
	r.sum += v
	r.next = (r.next + 1) % r.period
	if r.next == 0 && r.count == r.period {
		r.sum = 0
		for _, x := range r.buf {
			r.sum += x
		}
	}
}

func (r *RollingSMA) Ready() bool    { return r.count == r.period }
func (r *RollingSMA) Value() float64 { return r.sum / float64(r.count) }

// RollingRSI follows the same seed and Wilder steps as RSI, one value at a time.
type RollingRSI struct {
	period  int
	prev    float64
	seen    int
	gain    float64
	loss    float64
	avgGain float64
	avgLoss float64
}

func NewRollingRSI(period int) *RollingRSI {
	if period < 1 {
		period = 1
	}
	return &RollingRSI{period: period}
}

func (r *RollingRSI) Push(v float64) {
	r.seen++
	if r.seen == 1 {
		r.prev = v
		return
	}
	g, l := split(v - r.prev)
	r.prev = v
	deltas := r.seen - 1
	p := float64(r.period)
	switch {
	case deltas < r.period:
		r.gain += g
		r.loss += l
	case deltas == r.period:
		r.gain += g
		r.loss += l
		r.avgGain = r.gain / p
		r.avgLoss = r.loss / p
	default:
		r.avgGain = (r.avgGain*float64(r.period-1) + g) / p
		r.avgLoss = (r.avgLoss*float64(r.period-1) + l) / p
	}
}

func (r *RollingRSI) Ready() bool { return r.seen > r.period }

func (r *RollingRSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	return rsiValue(r.avgGain, r.avgLoss)
}
