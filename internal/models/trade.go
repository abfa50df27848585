package models

import "time"

// Trade is a ledger entry. RealizedPnL stays nil until the trade closes a position.
type Trade struct {
	ID         string    `json:"id"`
	Side       Side      `json:"side"`
	Symbol     string    `json:"symbol"`
	StrategyID string    `json:"strategy_id"`
	Quantity   float64   `json:"quantity"`
	QuotePrice float64   `json:"quote_price"`
	Price      float64   `json:"price"`
	Fees       float64   `json:"fees"`
	Slippage   float64   `json:"slippage"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
	// nil until the position is closed
	RealizedPnL *float64 `json:"realized_pnl,omitempty"`
}

// SignedQuantity is positive for buys, negative for sells.
func (t Trade) SignedQuantity() float64 {
	if t.Side == SideSell {
		return -t.Quantity
	}
	return t.Quantity
}

func (t Trade) Notional() float64 { return t.Price * t.Quantity }
