package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trade_engine/internal/models"
	backtest "trade_engine/internal/modules/backtest/service"
	risk "trade_engine/internal/modules/risk/service"
	strategy "trade_engine/internal/modules/strategy/service"
	"trade_engine/pkg/logger"
)

// Session is one user's live run: its account, its strategies and the
// stream tasks feeding them. Nothing in it is shared with other sessions.
type Session struct {
	UserID  string
	Account *risk.Account

	m     *Manager
	hub   *strategy.Hub
	cfgs  map[string]models.StrategyConfig
	model models.ExecutionModel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	seq        atomic.Int64
	lastSignal atomic.Int64
	started    time.Time
}

func (s *Session) Strategies() []models.StrategyConfig { return s.hub.Strategies() }

// LastSignalAt is zero until the session dispatched a signal.
func (s *Session) LastSignalAt() time.Time {
	if n := s.lastSignal.Load(); n > 0 {
		return time.Unix(0, n).UTC()
	}
	return time.Time{}
}

// PositionContext implements strategy.PositionSource.
func (s *Session) PositionContext(strategyID, symbol string) strategy.PositionContext {
	p, ok := s.Account.Position(symbol, strategyID)
	if !ok {
		return strategy.PositionContext{}
	}
	return strategy.PositionContext{InPosition: true, EntryPrice: p.AverageEntryPrice, Quantity: p.Quantity}
}

// OnSignal implements strategy.SignalSink: size, dispatch, then book the
// paper fill on the session account.
func (s *Session) OnSignal(ctx context.Context, sig models.Signal) {
	cfg, ok := s.cfgs[sig.StrategyID]
	if !ok {
		return
	}
	d := s.m.risk.Size(sig, s.Account, cfg.Risk)
	if err := d.Rejection(sig); err != nil {
		logger.Debug("[SESSION %s] %v", s.UserID, err)
		return
	}
	qty := d.Quantity
	if sig.Action == models.ActionBuy {
		price := backtest.FillPrice(sig.SuggestedPrice, models.SideBuy, s.model)
		qty = backtest.Affordable(qty, price, s.Account.Balance(), s.model)
		if qty <= 0 {
			logger.Warn("[SESSION %s] %s %s: balance %.2f cannot cover a buy", s.UserID, sig.StrategyID, sig.Symbol, s.Account.Balance())
			return
		}
	}
	s.dispatch(ctx, sig.WithQuantity(qty), "signal")
}

func (s *Session) dispatch(ctx context.Context, sig models.Signal, reason string) {
	acked, err := s.m.dispatcher.Dispatch(ctx, sig)
	if err != nil {
		logger.Error("[SESSION %s] dispatch %s: %v", s.UserID, sig.ID, err)
		return
	}
	if !acked {
		logger.Debug("[SESSION %s] duplicate signal %s %s dropped", s.UserID, sig.StrategyID, sig.Symbol)
		return
	}
	s.lastSignal.Store(sig.GeneratedAt.UnixNano())
	s.m.noteSignal(sig.GeneratedAt)
	s.book(ctx, sig, reason)
}

func (s *Session) book(ctx context.Context, sig models.Signal, reason string) {
	side := models.SideBuy
	if sig.Action == models.ActionSell {
		side = models.SideSell
	}
	price := backtest.FillPrice(sig.SuggestedPrice, side, s.model)
	qty := sig.SuggestedQuantity
	if side == models.SideBuy {
		qty = backtest.Affordable(qty, price, s.Account.Balance(), s.model)
	}
	if qty <= 0 {
		logger.Warn("[SESSION %s] %s: nothing to book", s.UserID, sig.ID)
		return
	}
	t := models.Trade{
		ID:         fmt.Sprintf("%s-%06d", s.UserID, s.seq.Add(1)),
		Side:       side,
		Symbol:     sig.Symbol,
		StrategyID: sig.StrategyID,
		Quantity:   qty,
		QuotePrice: sig.SuggestedPrice,
		Price:      price,
		Fees:       backtest.Commission(price, qty, s.model),
		Timestamp:  sig.GeneratedAt,
		Reason:     reason,
	}
	if side == models.SideBuy {
		t.Slippage = price - sig.SuggestedPrice
	} else {
		t.Slippage = sig.SuggestedPrice - price
	}
	t.RealizedPnL = s.Account.Apply(t)
	if side == models.SideBuy {
		s.Account.SetStops(sig.Symbol, sig.StrategyID, sig.StopLoss, sig.TakeProfit)
	}
	if err := s.m.store.AppendTrade(ctx, t); err != nil {
		logger.Error("[SESSION %s] store trade %s: %v", s.UserID, t.ID, err)
	}
}

// onCandle closes positions whose stop or target the candle touched, then
// evaluates the strategies of the stream.
func (s *Session) onCandle(ctx context.Context, c models.Candle) {
	for _, cfg := range s.cfgs {
		if cfg.Exchange != c.Exchange || cfg.Symbol != c.Symbol || cfg.Timeframe != c.Timeframe {
			continue
		}
		p, ok := s.Account.Position(cfg.Symbol, cfg.ID)
		if !ok {
			continue
		}
		quote, reason, hit := backtest.StopExit(p, c)
		if !hit {
			continue
		}
		exit := models.Signal{
			ID:                fmt.Sprintf("%s-%s-%d", cfg.ID, reason, c.Start.Unix()),
			StrategyID:        cfg.ID,
			Revision:          cfg.Revision,
			Exchange:          c.Exchange,
			Symbol:            c.Symbol,
			Action:            models.ActionSell,
			Confidence:        1,
			SuggestedPrice:    quote,
			SuggestedQuantity: p.Quantity,
			GeneratedAt:       c.End(),
			Basis:             map[string]float64{reason: quote},
		}
		s.dispatch(ctx, exit, reason)
	}
	s.hub.OnCandle(ctx, c)
}

// runStream warms the hub from REST history and then consumes the live
// subscription until the session stops.
func (s *Session) runStream(spec strategy.StreamSpec, warmup int) {
	defer s.wg.Done()

	if warmup > 0 {
		history, err := s.m.feed.History(s.ctx, spec.Exchange, spec.Symbol, spec.Timeframe, warmup)
		if err != nil {
			logger.Warn("[SESSION %s] warmup %s: %v", s.UserID, spec.Key(), err)
		} else {
			s.hub.Warm(history)
		}
	}

	sub, err := s.m.feed.Subscribe(s.ctx, spec.Exchange, spec.Symbol, spec.Timeframe)
	if err != nil {
		logger.Error("[SESSION %s] subscribe %s: %v", s.UserID, spec.Key(), err)
		return
	}
	defer sub.Close()
	logger.Info("[SESSION %s] streaming %s", s.UserID, spec.Key())

	for c := range sub.C() {
		s.onCandle(s.ctx, c)
	}
}

func (s *Session) stop() {
	s.cancel()
	s.wg.Wait()
	for id := range s.cfgs {
		s.m.broker.Unbind(id)
	}
}
