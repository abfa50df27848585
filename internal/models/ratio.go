package models

import (
	"math"
	"strconv"
)

// Ratio is a float that survives JSON when it is infinite. Infinite values
// are written as the strings "+Inf" and "-Inf", NaN as null.
type Ratio float64

func (r Ratio) IsInf() bool { return math.IsInf(float64(r), 0) }

func (r Ratio) MarshalJSON() ([]byte, error) {
	v := float64(r)
	switch {
	case math.IsNaN(v):
		return []byte("null"), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		*r = Ratio(math.NaN())
		return nil
	case `"+Inf"`:
		*r = Ratio(math.Inf(1))
		return nil
	case `"-Inf"`:
		*r = Ratio(math.Inf(-1))
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*r = Ratio(v)
	return nil
}
