package service

import (
	"math"
	"testing"

	"trade_engine/internal/models"
)

func TestStopExit(t *testing.T) {
	pos := models.Position{Quantity: 1, AverageEntryPrice: 100, StopLoss: 99, TakeProfit: 102}
	cases := []struct {
		name       string
		candle     models.Candle
		wantQuote  float64
		wantReason string
		wantHit    bool
	}{
		{"inside range", models.Candle{Open: 100, High: 101, Low: 99.5, Close: 100.5}, 0, "", false},
		{"touches stop", models.Candle{Open: 100, High: 100, Low: 98.5, Close: 99}, 99, ReasonStopLoss, true},
		{"gaps below stop", models.Candle{Open: 95, High: 96, Low: 94, Close: 95}, 95, ReasonStopLoss, true},
		{"touches target", models.Candle{Open: 101, High: 103, Low: 100.5, Close: 102.5}, 102, ReasonTakeProfit, true},
		{"both in range", models.Candle{Open: 100, High: 103, Low: 98, Close: 100}, 99, ReasonStopLoss, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote, reason, hit := StopExit(pos, tc.candle)
			if hit != tc.wantHit || reason != tc.wantReason || quote != tc.wantQuote {
				t.Fatalf("got %v %q %v", quote, reason, hit)
			}
		})
	}
}

func TestAffordableCapsToBalance(t *testing.T) {
	m := models.ExecutionModel{Commission: 0.001}
	qty := Affordable(10, 100, 500, m)
	if cost := qty * 100 * (1 + m.Commission); math.Abs(cost-500) > 1e-9 {
		t.Fatalf("cost = %v", cost)
	}
	if got := Affordable(1, 100, 500, m); got != 1 {
		t.Fatalf("small buy capped to %v", got)
	}
	if got := Affordable(1, 100, -5, m); got != 0 {
		t.Fatalf("negative balance allows %v", got)
	}
}
