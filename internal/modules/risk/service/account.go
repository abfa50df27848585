package service

import (
	"sort"
	"sync"

	"trade_engine/internal/models"
)

type positionKey struct {
	symbol     string
	strategyID string
}

// Account is the balance and positions of one session or backtest run.
// Cash moves by notional and fees on every fill.
type Account struct {
	mu        sync.RWMutex
	balance   float64
	positions map[positionKey]*models.Position
}

func NewAccount(balance float64) *Account {
	return &Account{
		balance:   balance,
		positions: make(map[positionKey]*models.Position),
	}
}

func (a *Account) Balance() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}

// SetBalance replaces the cash balance, e.g. after reading the live venue balance.
func (a *Account) SetBalance(b float64) {
	a.mu.Lock()
	a.balance = b
	a.mu.Unlock()
}

// Apply books a filled trade and returns the realized PnL of a closing fill.
func (a *Account) Apply(t models.Trade) *float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := positionKey{symbol: t.Symbol, strategyID: t.StrategyID}
	p, ok := a.positions[key]
	if !ok {
		p = &models.Position{Symbol: t.Symbol, StrategyID: t.StrategyID}
		a.positions[key] = p
	}
	switch t.Side {
	case models.SideBuy:
		a.balance -= t.Notional() + t.Fees
	case models.SideSell:
		a.balance += t.Notional() - t.Fees
	}
	return p.Apply(t)
}

// SetStops records the protective levels of an open position.
func (a *Account) SetStops(symbol, strategyID string, stopLoss, takeProfit float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.positions[positionKey{symbol: symbol, strategyID: strategyID}]; ok && p.Open() {
		p.StopLoss, p.TakeProfit = stopLoss, takeProfit
	}
}

// OpenTrades counts the fills building the open position.
func (a *Account) OpenTrades(symbol, strategyID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.positions[positionKey{symbol: symbol, strategyID: strategyID}]
	if !ok || !p.Open() {
		return 0
	}
	return p.OpenTrades
}

func (a *Account) Position(symbol, strategyID string) (models.Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.positions[positionKey{symbol: symbol, strategyID: strategyID}]
	if !ok || !p.Open() {
		return models.Position{}, false
	}
	return *p, true
}

// Positions returns the open positions ordered by symbol and strategy.
func (a *Account) Positions() []models.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.Position, 0, len(a.positions))
	for _, p := range a.positions {
		if p.Open() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].StrategyID < out[j].StrategyID
	})
	return out
}

// Equity is cash plus open quantity marked at marks[symbol], falling back to
// the average entry price when no mark is known.
func (a *Account) Equity(marks map[string]float64) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	eq := a.balance
	for _, p := range a.positions {
		if !p.Open() {
			continue
		}
		mark, ok := marks[p.Symbol]
		if !ok || mark <= 0 {
			mark = p.AverageEntryPrice
		}
		eq += p.Quantity * mark
	}
	return eq
}
