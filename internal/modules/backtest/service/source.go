package service

import (
	"context"
	"iter"
	"sort"

	"trade_engine/internal/models"
)

// CandleSource yields the candles of one run in ascending start order.
// Yielding stops early when the consumer stops ranging.
type CandleSource interface {
	Candles(ctx context.Context) iter.Seq2[models.Candle, error]
}

// SliceSource replays an in-memory series. It can be ranged any number of times.
type SliceSource []models.Candle

func (s SliceSource) Candles(context.Context) iter.Seq2[models.Candle, error] {
	return func(yield func(models.Candle, error) bool) {
		for _, c := range s {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// RangeLoader is the paginated REST history of the feed.
type RangeLoader interface {
	Range(ctx context.Context, exchange, symbol, timeframe string, r models.DataRange) ([]models.Candle, error)
}

// ExchangeSource loads a range through the feed once, on first use.
type ExchangeSource struct {
	Loader    RangeLoader
	Exchange  string
	Symbol    string
	Timeframe string
	Range     models.DataRange
}

func (s ExchangeSource) Candles(ctx context.Context) iter.Seq2[models.Candle, error] {
	return func(yield func(models.Candle, error) bool) {
		candles, err := s.Load(ctx)
		if err != nil {
			yield(models.Candle{}, err)
			return
		}
		for _, c := range candles {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Load fetches and sorts the range. Optimizers load once and replay the
// result through a SliceSource.
func (s ExchangeSource) Load(ctx context.Context) ([]models.Candle, error) {
	candles, err := s.Loader.Range(ctx, s.Exchange, s.Symbol, s.Timeframe, s.Range)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Start.Before(candles[j].Start) })
	return candles, nil
}
