package service

import "trade_engine/internal/models"

// FillPrice moves quote against the trader by half the spread and then by
// the slippage fraction. Both legs are fractions of the quote, so a buy
// always fills at quote*(1+spread/2+slippage) and a sell at
// quote*(1-spread/2-slippage).
func FillPrice(quote float64, side models.Side, m models.ExecutionModel) float64 {
	halfSpread := quote * m.Spread / 2
	slip := quote * m.Slippage
	if side == models.SideBuy {
		return quote + halfSpread + slip
	}
	return quote - halfSpread - slip
}

// Commission is charged on the filled notional.
func Commission(price, qty float64, m models.ExecutionModel) float64 {
	return price * qty * m.Commission
}

// Affordable caps a buy so notional plus commission fits the cash balance.
func Affordable(qty, price, balance float64, m models.ExecutionModel) float64 {
	if balance <= 0 || price <= 0 {
		return 0
	}
	maxQty := balance / (price * (1 + m.Commission))
	if qty > maxQty {
		return maxQty
	}
	return qty
}

const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// StopExit reports the quote at which candle c closes position p through its
// stop or target. The stop wins when both are inside the range, and a candle
// that opens beyond the stop fills at its open.
func StopExit(p models.Position, c models.Candle) (quote float64, reason string, ok bool) {
	switch {
	case p.StopLoss > 0 && c.Low <= p.StopLoss:
		quote = p.StopLoss
		if c.Open < quote {
			quote = c.Open
		}
		return quote, ReasonStopLoss, true
	case p.TakeProfit > 0 && c.High >= p.TakeProfit:
		return p.TakeProfit, ReasonTakeProfit, true
	}
	return 0, "", false
}
