package models

import (
	"math"
	"testing"
	"time"
)

func TestPositionQuantityEqualsSignedTradeSum(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		{Side: SideBuy, Quantity: 2, Price: 100, Timestamp: ts},
		{Side: SideBuy, Quantity: 1, Price: 130, Timestamp: ts.Add(time.Minute)},
		{Side: SideSell, Quantity: 3, Price: 120, Timestamp: ts.Add(2 * time.Minute)},
		{Side: SideBuy, Quantity: 0.5, Price: 90, Timestamp: ts.Add(3 * time.Minute)},
	}

	var p Position
	var sum float64
	for i, tr := range trades {
		p.Apply(tr)
		sum += tr.SignedQuantity()
		if math.Abs(p.Quantity-sum) > 1e-9 {
			t.Fatalf("after trade %d: quantity %v, signed sum %v", i, p.Quantity, sum)
		}
	}
	if !p.OpenedAt.Equal(ts.Add(3 * time.Minute)) {
		t.Fatalf("reopened position should take the new open time, got %v", p.OpenedAt)
	}
}

func TestPositionRealizedPnL(t *testing.T) {
	var p Position
	if pnl := p.Apply(Trade{Side: SideBuy, Quantity: 2, Price: 100}); pnl != nil {
		t.Fatalf("buy must not realize pnl")
	}
	p.Apply(Trade{Side: SideBuy, Quantity: 2, Price: 110})
	if p.AverageEntryPrice != 105 {
		t.Fatalf("average entry = %v, want 105", p.AverageEntryPrice)
	}
	if p.OpenTrades != 2 {
		t.Fatalf("open trades = %d, want 2", p.OpenTrades)
	}

	pnl := p.Apply(Trade{Side: SideSell, Quantity: 4, Price: 115, Fees: 1})
	if pnl == nil || math.Abs(*pnl-39) > 1e-9 {
		t.Fatalf("realized pnl = %v, want 39", pnl)
	}
	if p.Open() || p.OpenTrades != 0 {
		t.Fatalf("position should be flat: %+v", p)
	}
}

func TestStrategyConfigWithParametersBumpsRevision(t *testing.T) {
	base := StrategyConfig{ID: "m1", Revision: 1, Type: StrategyMomentum, Parameters: map[string]float64{"lookbackPeriod": 4}}
	next := base.WithParameters(map[string]float64{"momentumThreshold": 0.03}, time.Time{})

	if next.Revision != 2 || next.Key() != "m1@2" {
		t.Fatalf("unexpected revision %d key %s", next.Revision, next.Key())
	}
	if _, ok := base.Parameters["momentumThreshold"]; ok {
		t.Fatalf("original config was mutated")
	}
	if next.Param("lookbackPeriod", 0) != 4 || next.Param("momentumThreshold", 0) != 0.03 {
		t.Fatalf("merged parameters wrong: %v", next.Parameters)
	}
}

func TestErrorHelpers(t *testing.T) {
	var err error = &InsufficientDataError{Indicator: "sma", Required: 20, Got: 3}
	if !IsInsufficientData(err) || IsConfiguration(err) {
		t.Fatalf("classification failed for %v", err)
	}
	if !StrategyDCA.Valid() || StrategyType("martingale").Valid() {
		t.Fatalf("closed strategy set not enforced")
	}
}
