package models

import "time"

// Candle is a closed OHLCV bucket normalised from an exchange feed.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Timeframe string    `json:"timeframe"`
	Start     time.Time `json:"start"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// StreamKey identifies the (exchange, symbol, timeframe) stream a candle belongs to.
func (c Candle) StreamKey() string { return c.Exchange + ":" + c.Symbol + ":" + c.Timeframe }

// End is the close time of the candle, Start when the timeframe is unknown.
func (c Candle) End() time.Time { return c.Start.Add(TimeframeDuration(c.Timeframe)) }

// Valid rejects garbage rows before they enter a stream.
func (c Candle) Valid() bool {
	if c.Close <= 0 || c.High <= 0 || c.Low <= 0 || c.Open <= 0 {
		return false
	}
	if c.High < c.Low || c.Volume < 0 {
		return false
	}
	return !c.Start.IsZero()
}

func Closes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func Volumes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

// TimeframeDuration is the width of a candle for every bar size the exchange
// adapters accept, 0 for anything else.
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1H", "1h", "60m":
		return time.Hour
	case "2H", "2h":
		return 2 * time.Hour
	case "4H", "4h":
		return 4 * time.Hour
	case "6H", "6h":
		return 6 * time.Hour
	case "8H", "8h":
		return 8 * time.Hour
	case "12H", "12h":
		return 12 * time.Hour
	case "1D", "1d":
		return 24 * time.Hour
	case "3D", "3d":
		return 72 * time.Hour
	case "1W", "1w":
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}
