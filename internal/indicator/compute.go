package indicator

import (
	"math"

	"trade_engine/internal/models"
)

const (
	SMAName             = "sma"
	EMAName             = "ema"
	RSIName             = "rsi"
	MACDName            = "macd"
	MACDSignalName      = "macd_signal"
	MACDHistogramName   = "macd_histogram"
	BollingerUpperName  = "bollinger_upper"
	BollingerMiddleName = "bollinger_middle"
	BollingerLowerName  = "bollinger_lower"
	StdDevName          = "stddev"
	ROCName             = "roc"
)

// Parameter keys understood by Compute.
const (
	ParamPeriod = "period"
	ParamFast   = "fast"
	ParamSlow   = "slow"
	ParamSignal = "signal"
	ParamK      = "k"
)

var defaultPeriods = map[string]int{
	SMAName:             20,
	EMAName:             20,
	RSIName:             14,
	BollingerUpperName:  20,
	BollingerMiddleName: 20,
	BollingerLowerName:  20,
	StdDevName:          20,
	ROCName:             10,
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func intParam(params map[string]float64, key string, def int) int {
	return int(math.Round(param(params, key, float64(def))))
}

func macdPeriods(params map[string]float64) (fast, slow, signal int) {
	return intParam(params, ParamFast, 12), intParam(params, ParamSlow, 26), intParam(params, ParamSignal, 9)
}

// RequiredLookback is the minimum number of closes Compute needs to return a
// non-empty series for name.
func RequiredLookback(name string, params map[string]float64) (int, error) {
	switch name {
	case SMAName, EMAName, StdDevName, BollingerUpperName, BollingerMiddleName, BollingerLowerName:
		p := intParam(params, ParamPeriod, defaultPeriods[name])
		if p <= 0 {
			return 0, badParam(name, ParamPeriod)
		}
		return p, nil
	case RSIName, ROCName:
		p := intParam(params, ParamPeriod, defaultPeriods[name])
		if p <= 0 {
			return 0, badParam(name, ParamPeriod)
		}
		return p + 1, nil
	case MACDName, MACDSignalName, MACDHistogramName:
		fast, slow, signal := macdPeriods(params)
		if fast <= 0 || slow <= fast || signal <= 0 {
			return 0, badParam(name, "fast/slow/signal")
		}
		if name == MACDName {
			return slow, nil
		}
		return slow + signal - 1, nil
	default:
		return 0, &models.ConfigurationError{Field: "indicator", Reason: "unknown indicator " + name}
	}
}

// Compute evaluates one named indicator over closes.
func Compute(name string, closes []float64, params map[string]float64) (Series, error) {
	need, err := RequiredLookback(name, params)
	if err != nil {
		return Series{}, err
	}
	if len(closes) < need {
		return Series{}, &models.InsufficientDataError{Indicator: name, Required: need, Got: len(closes)}
	}

	s := Series{Name: name, Offset: need - 1}
	period := intParam(params, ParamPeriod, defaultPeriods[name])
	switch name {
	case SMAName:
		s.Values = SMA(closes, period)
	case EMAName:
		s.Values = EMA(closes, period)
	case StdDevName:
		s.Values = StdDev(closes, period)
	case RSIName:
		s.Values = RSI(closes, period)
	case ROCName:
		s.Values = ROC(closes, period)
	case BollingerUpperName, BollingerMiddleName, BollingerLowerName:
		b := Bollinger(closes, period, param(params, ParamK, 2))
		switch name {
		case BollingerUpperName:
			s.Values = b.Upper
		case BollingerMiddleName:
			s.Values = b.Middle
		default:
			s.Values = b.Lower
		}
	case MACDName, MACDSignalName, MACDHistogramName:
		fast, slow, signal := macdPeriods(params)
		m := MACD(closes, fast, slow, signal)
		switch name {
		case MACDName:
			s.Values = m.Line
		case MACDSignalName:
			s.Values = m.Signal
		default:
			s.Values = m.Histogram
		}
	}
	return s, nil
}

func badParam(name, field string) error {
	return &models.ConfigurationError{Field: name + "." + field, Reason: "must be positive (slow > fast for macd)"}
}
