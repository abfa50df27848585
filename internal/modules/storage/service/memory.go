package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trade_engine/internal/models"
)

// Memory is the store used without a database DSN.
type Memory struct {
	mu          sync.RWMutex
	strategies  map[string][]models.StrategyConfig
	trades      []models.Trade
	runs        map[string]*models.BacktestRun
	deadLetters []models.DeadLetter
}

func NewMemory() *Memory {
	return &Memory{
		strategies: make(map[string][]models.StrategyConfig),
		runs:       make(map[string]*models.BacktestRun),
	}
}

func (m *Memory) SaveStrategy(_ context.Context, cfg models.StrategyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.strategies[cfg.ID] {
		if c.Revision == cfg.Revision {
			return fmt.Errorf("strategy %s: revision exists", cfg.Key())
		}
	}
	revs := append(m.strategies[cfg.ID], cloneStrategy(cfg))
	sort.Slice(revs, func(i, j int) bool { return revs[i].Revision < revs[j].Revision })
	m.strategies[cfg.ID] = revs
	return nil
}

func (m *Memory) LatestStrategy(_ context.Context, id string) (models.StrategyConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs := m.strategies[id]
	if len(revs) == 0 {
		return models.StrategyConfig{}, ErrNotFound
	}
	return cloneStrategy(revs[len(revs)-1]), nil
}

func (m *Memory) StrategyRevisions(_ context.Context, id string) ([]models.StrategyConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StrategyConfig, 0, len(m.strategies[id]))
	for _, c := range m.strategies[id] {
		out = append(out, cloneStrategy(c))
	}
	return out, nil
}

func (m *Memory) AppendTrade(_ context.Context, t models.Trade) error {
	m.mu.Lock()
	m.trades = append(m.trades, t)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Trades(_ context.Context, strategyID string) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trade
	for _, t := range m.trades {
		if t.StrategyID == strategyID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) SaveBacktest(_ context.Context, run *models.BacktestRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("backtest run without id")
	}
	cp := *run
	cp.Ledger = append([]models.Trade(nil), run.Ledger...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("backtest %s exists", run.ID)
	}
	m.runs[run.ID] = &cp
	return nil
}

func (m *Memory) Backtest(_ context.Context, id string) (*models.BacktestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	cp.Ledger = append([]models.Trade(nil), run.Ledger...)
	return &cp, nil
}

func (m *Memory) SaveDeadLetter(_ context.Context, dl models.DeadLetter) error {
	m.mu.Lock()
	m.deadLetters = append(m.deadLetters, dl)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeadLetters(_ context.Context, consumer string) ([]models.DeadLetter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DeadLetter
	for _, dl := range m.deadLetters {
		if consumer == "" || dl.Consumer == consumer {
			out = append(out, dl)
		}
	}
	return out, nil
}

func cloneStrategy(c models.StrategyConfig) models.StrategyConfig {
	params := make(map[string]float64, len(c.Parameters))
	for k, v := range c.Parameters {
		params[k] = v
	}
	c.Parameters = params
	return c
}
