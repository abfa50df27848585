package models

import (
	"math"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is owned by a single run and only changes through Apply.
type Position struct {
	Symbol            string    `json:"symbol"`
	StrategyID        string    `json:"strategy_id"`
	Quantity          float64   `json:"quantity"`
	AverageEntryPrice float64   `json:"average_entry_price"`
	OpenedAt          time.Time `json:"opened_at"`
	// number of fills that built the current position
	OpenTrades int     `json:"open_trades"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

func (p *Position) Open() bool { return p != nil && p.Quantity > quantityEpsilon }

const quantityEpsilon = 1e-12

// Apply folds a filled trade into the position and returns the realized PnL
// for the closed part (nil when nothing was closed). Fees are not part of the
// average entry price; they are charged to the balance by the caller.
func (p *Position) Apply(t Trade) *float64 {
	switch t.Side {
	case SideBuy:
		if !p.Open() {
			p.OpenedAt = t.Timestamp
			p.OpenTrades = 0
			p.AverageEntryPrice = 0
			p.Quantity = 0
		}
		total := p.Quantity + t.Quantity
		p.AverageEntryPrice = (p.AverageEntryPrice*p.Quantity + t.Price*t.Quantity) / total
		p.Quantity = total
		p.OpenTrades++
		return nil
	case SideSell:
		qty := math.Min(t.Quantity, p.Quantity)
		pnl := (t.Price-p.AverageEntryPrice)*qty - t.Fees
		p.Quantity -= qty
		if p.Quantity <= quantityEpsilon {
			p.Quantity = 0
			p.OpenTrades = 0
			p.StopLoss = 0
			p.TakeProfit = 0
		}
		return &pnl
	}
	return nil
}
