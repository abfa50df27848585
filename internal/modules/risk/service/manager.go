package service

import (
	"math"
	"sync"
	"sync/atomic"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
)

const (
	ReasonNonPositiveBalance = "non_positive_balance"
	ReasonInvalidPrice       = "invalid_price"
	ReasonZeroStopDistance   = "zero_stop_distance"
	ReasonMaxConcurrent      = "max_concurrent_trades"
	ReasonMaxPositionSize    = "max_position_size"
	ReasonNoPosition         = "no_position"
	ReasonNoAction           = "no_action"
)

// Decision is the outcome of sizing one signal.
type Decision struct {
	Quantity float64
	Accepted bool
	Reason   string
}

// Rejection returns the rejection as an error value, nil when accepted.
func (d Decision) Rejection(s models.Signal) error {
	if d.Accepted {
		return nil
	}
	return &models.RiskRejection{Reason: d.Reason, StrategyID: s.StrategyID, Symbol: s.Symbol}
}

// Manager sizes signals. It keeps only rejection counters.
type Manager struct {
	mu         sync.Mutex
	rejections map[string]*atomic.Int64
}

func NewManager() *Manager {
	return &Manager{rejections: make(map[string]*atomic.Int64)}
}

// Size computes balance*MaxRiskPerTrade/|entry-stop| for buys and closes the
// whole open position for sells.
func (m *Manager) Size(s models.Signal, account *Account, params models.RiskParameters) Decision {
	switch s.Action {
	case models.ActionSell:
		pos, ok := account.Position(s.Symbol, s.StrategyID)
		if !ok {
			return m.reject(s, ReasonNoPosition)
		}
		return Decision{Quantity: pos.Quantity, Accepted: true}
	case models.ActionBuy:
	default:
		return m.reject(s, ReasonNoAction)
	}

	balance := account.Balance()
	if balance <= 0 {
		return m.reject(s, ReasonNonPositiveBalance)
	}
	entry := s.SuggestedPrice
	if entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		return m.reject(s, ReasonInvalidPrice)
	}
	if account.OpenTrades(s.Symbol, s.StrategyID) >= params.MaxConcurrentTrades {
		return m.reject(s, ReasonMaxConcurrent)
	}
	stopDist := math.Abs(entry - s.StopLoss)
	if s.StopLoss <= 0 || stopDist <= 0 {
		return m.reject(s, ReasonZeroStopDistance)
	}

	qty := balance * params.MaxRiskPerTrade / stopDist
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return m.reject(s, ReasonZeroStopDistance)
	}
	if qty*entry > params.MaxPositionSize*balance {
		return m.reject(s, ReasonMaxPositionSize)
	}
	return Decision{Quantity: qty, Accepted: true}
}

func (m *Manager) reject(s models.Signal, reason string) Decision {
	m.mu.Lock()
	c, ok := m.rejections[reason]
	if !ok {
		c = new(atomic.Int64)
		m.rejections[reason] = c
	}
	m.mu.Unlock()
	c.Add(1)
	metrics.RiskRejections.WithLabelValues(reason).Inc()
	logger.Debug("[RISK] %s %s %s rejected: %s", s.StrategyID, s.Symbol, s.Action, reason)
	return Decision{Reason: reason}
}

// Rejections returns a snapshot of rejection counts by reason.
func (m *Manager) Rejections() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.rejections))
	for reason, c := range m.rejections {
		out[reason] = c.Load()
	}
	return out
}
