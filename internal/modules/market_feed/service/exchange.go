package service

import (
	"context"
	"time"

	"trade_engine/internal/models"
)

// Sink receives what a live stream produces. Heartbeat is called for every
// frame read from the transport, Candle only for closed candles.
type Sink interface {
	Candle(c models.Candle)
	Heartbeat(at time.Time)
}

// Exchange is one venue adapter.
type Exchange interface {
	Name() string
	// Candles returns up to limit most recent closed candles, oldest first.
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
	// CandlesBetween pages through history in [from, to), oldest first.
	CandlesBetween(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error)
	// Stream blocks until the transport fails or ctx ends.
	Stream(ctx context.Context, symbol, timeframe string, sink Sink) error
	Balance(ctx context.Context) (float64, error)
}

// BalanceSource is an authenticated account client.
type BalanceSource interface {
	Balance(ctx context.Context, ccy string) (float64, error)
}
