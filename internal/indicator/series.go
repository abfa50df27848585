package indicator

import "math"

// Series is an indicator output aligned to the input sequence: Values[0]
// belongs to input index Offset.
type Series struct {
	Name   string
	Offset int
	Values []float64
}

func (s Series) Len() int { return len(s.Values) }

// At returns the value aligned with input index i, NaN when i is outside the series.
func (s Series) At(i int) float64 {
	j := i - s.Offset
	if j < 0 || j >= len(s.Values) {
		return math.NaN()
	}
	return s.Values[j]
}
