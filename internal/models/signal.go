package models

import "time"

type Action string

const (
	ActionNone Action = "none"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Signal is produced fresh per evaluation and never mutated afterwards.
type Signal struct {
	ID                string             `json:"id"`
	StrategyID        string             `json:"strategy_id"`
	Revision          int                `json:"revision"`
	Exchange          string             `json:"exchange"`
	Symbol            string             `json:"symbol"`
	Action            Action             `json:"action"`
	Confidence        float64            `json:"confidence"`
	SuggestedPrice    float64            `json:"suggested_price"`
	SuggestedQuantity float64            `json:"suggested_quantity"`
	StopLoss          float64            `json:"stop_loss"`
	TakeProfit        float64            `json:"take_profit"`
	GeneratedAt       time.Time          `json:"generated_at"`
	Basis             map[string]float64 `json:"basis"`
}

// WithQuantity returns a sized copy.
func (s Signal) WithQuantity(q float64) Signal {
	s.SuggestedQuantity = q
	return s
}
