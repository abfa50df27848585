package indicator

import "trade_engine/internal/models"

// trackerDepth is how many recent outputs a Tracker keeps; strategies read
// the newest value and the one before it.
const trackerDepth = 2

type rolling interface {
	Push(v float64)
	Ready() bool
	Value() float64
}

// Incremental reports whether name has a rolling form a Tracker can follow.
func Incremental(name string) bool {
	return name == SMAName || name == RSIName
}

// Tracker follows one incremental indicator over a close sequence, one close
// at a time.
type Tracker struct {
	name   string
	r      rolling
	recent []float64
}

func NewTracker(name string, params map[string]float64) (*Tracker, error) {
	if _, err := RequiredLookback(name, params); err != nil {
		return nil, err
	}
	period := intParam(params, ParamPeriod, defaultPeriods[name])
	t := &Tracker{name: name, recent: make([]float64, 0, trackerDepth)}
	switch name {
	case SMAName:
		t.r = NewRollingSMA(period)
	case RSIName:
		t.r = NewRollingRSI(period)
	default:
		return nil, &models.ConfigurationError{Field: "indicator", Reason: name + " has no rolling form"}
	}
	return t, nil
}

func (t *Tracker) Push(v float64) {
	t.r.Push(v)
	if !t.r.Ready() {
		return
	}
	if len(t.recent) == trackerDepth {
		copy(t.recent, t.recent[1:])
		t.recent[trackerDepth-1] = t.r.Value()
		return
	}
	t.recent = append(t.recent, t.r.Value())
}

// Series returns the recent outputs aligned so the newest one belongs to
// input index inputLen-1.
func (t *Tracker) Series(inputLen int) Series {
	values := append([]float64(nil), t.recent...)
	return Series{Name: t.name, Offset: inputLen - len(values), Values: values}
}
