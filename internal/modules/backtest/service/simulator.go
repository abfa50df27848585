package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/performance"
	risk "trade_engine/internal/modules/risk/service"
	strategy "trade_engine/internal/modules/strategy/service"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
	"trade_engine/pkg/tracing"
)

const reasonSignal = "signal"

type Options struct {
	// wall-clock budget of one run
	MaxDuration time.Duration
	WindowSize  int
}

// Simulator replays candles through the live evaluator and risk manager.
// It holds no run state; every Run owns its own account and ledger.
type Simulator struct {
	eval *strategy.Evaluator
	risk *risk.Manager
	opts Options
	now  func() time.Time
}

func NewSimulator(eval *strategy.Evaluator, rm *risk.Manager, opts Options) *Simulator {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 5 * time.Minute
	}
	if opts.WindowSize < 2 {
		opts.WindowSize = 300
	}
	return &Simulator{eval: eval, risk: rm, opts: opts, now: time.Now}
}

// run is the state of one backtest.
type run struct {
	cfg     models.StrategyConfig
	model   models.ExecutionModel
	account *risk.Account
	ledger  []models.Trade
	window  []models.Candle
	rolling *strategy.Rolling
}

// Run executes one backtest. On timeout, cancellation or a source error
// nothing is returned: a run is complete or absent.
func (s *Simulator) Run(
	ctx context.Context,
	cfg models.StrategyConfig,
	src CandleSource,
	model models.ExecutionModel,
	startingBalance float64,
) (res *models.BacktestRun, err error) {
	span, ctx := tracing.StartSpan(ctx, "backtest.run", map[string]interface{}{
		"strategy": cfg.Key(),
		"symbol":   cfg.Symbol,
	})
	defer func() {
		tracing.Finish(span, err)
		metrics.Backtests.WithLabelValues(outcome(err)).Inc()
	}()

	if err := strategy.Validate(cfg); err != nil {
		return nil, err
	}
	if startingBalance <= 0 {
		return nil, &models.ConfigurationError{StrategyID: cfg.ID, Field: "starting_balance", Reason: "must be positive"}
	}

	started := s.now()
	deadline := started.Add(s.opts.MaxDuration)
	r := &run{cfg: cfg, model: model, account: risk.NewAccount(startingBalance), rolling: strategy.NewRolling(cfg)}

	var (
		processed int
		skipped   int
		first     time.Time
		last      models.Candle
	)
	for c, err := range src.Candles(ctx) {
		if err != nil {
			return nil, errors.Wrap(err, "load candles")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.now().After(deadline) {
			return nil, &models.BacktestTimeoutError{StrategyID: cfg.ID, Limit: s.opts.MaxDuration, Processed: processed}
		}
		if !c.Valid() || (processed > 0 && !c.Start.After(last.Start)) {
			skipped++
			continue
		}
		if processed == 0 {
			first = c.Start
		}
		processed++
		last = c
		s.step(r, c)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		logger.Warn("[BACKTEST] %s: skipped %d invalid or out-of-order candles", cfg.Key(), skipped)
	}

	marks := map[string]float64{}
	if processed > 0 {
		marks[cfg.Symbol] = last.Close
	}
	out := &models.BacktestRun{
		ID:              uuid.NewString(),
		Strategy:        cfg,
		Range:           models.DataRange{From: first, To: last.End()},
		Execution:       model,
		StartingBalance: startingBalance,
		EndingBalance:   r.account.Balance(),
		EndingEquity:    r.account.Equity(marks),
		Candles:         processed,
		Skipped:         skipped,
		Ledger:          r.ledger,
		Report:          performance.Analyze(r.ledger, startingBalance, performance.Options{Marks: marks}),
		StartedAt:       started.UTC(),
		CompletedAt:     s.now().UTC(),
	}
	if processed == 0 {
		out.Range = models.DataRange{}
	}
	logger.Info("[BACKTEST] %s %s: %d candles, %d trades, return %.4f", cfg.Key(), cfg.ParamString(), processed, len(r.ledger), out.Report.TotalReturn)
	return out, nil
}

func (s *Simulator) step(r *run, c models.Candle) {
	r.window = append(r.window, c)
	if len(r.window) > s.opts.WindowSize {
		r.window = append(r.window[:0:0], r.window[len(r.window)-s.opts.WindowSize:]...)
	}
	r.rolling.Push(c.Close)

	if s.exitOnStops(r, c) {
		return
	}

	var pos strategy.PositionContext
	if p, ok := r.account.Position(r.cfg.Symbol, r.cfg.ID); ok {
		pos = strategy.PositionContext{InPosition: true, EntryPrice: p.AverageEntryPrice, Quantity: p.Quantity}
	}
	set := r.rolling.IndicatorSet(r.window, 0)
	sig, ok := s.eval.Evaluate(r.cfg, r.window, set, pos)
	if !ok {
		return
	}
	d := s.risk.Size(sig, r.account, r.cfg.Risk)
	if !d.Accepted {
		return
	}

	side := models.SideBuy
	if sig.Action == models.ActionSell {
		side = models.SideSell
	}
	t := r.fill(side, sig.SuggestedPrice, d.Quantity, sig.GeneratedAt, reasonSignal)
	if t.Quantity <= 0 {
		return
	}
	if side == models.SideBuy {
		r.account.SetStops(r.cfg.Symbol, r.cfg.ID, sig.StopLoss, sig.TakeProfit)
	}
}

// exitOnStops closes the open position when the candle touches its stop or
// target.
func (s *Simulator) exitOnStops(r *run, c models.Candle) bool {
	p, ok := r.account.Position(r.cfg.Symbol, r.cfg.ID)
	if !ok {
		return false
	}
	quote, reason, hit := StopExit(p, c)
	if !hit {
		return false
	}
	r.fill(models.SideSell, quote, p.Quantity, c.End(), reason)
	return true
}

func (r *run) fill(side models.Side, quote, qty float64, at time.Time, reason string) models.Trade {
	price := FillPrice(quote, side, r.model)
	if side == models.SideBuy {
		qty = Affordable(qty, price, r.account.Balance(), r.model)
	}
	if qty <= 0 || price <= 0 {
		return models.Trade{}
	}
	t := models.Trade{
		ID:         fmt.Sprintf("t-%06d", len(r.ledger)+1),
		Side:       side,
		Symbol:     r.cfg.Symbol,
		StrategyID: r.cfg.ID,
		Quantity:   qty,
		QuotePrice: quote,
		Price:      price,
		Fees:       Commission(price, qty, r.model),
		Timestamp:  at,
		Reason:     reason,
	}
	if side == models.SideBuy {
		t.Slippage = price - quote
	} else {
		t.Slippage = quote - price
	}
	t.RealizedPnL = r.account.Apply(t)
	r.ledger = append(r.ledger, t)
	return t
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case models.IsBacktestTimeout(err):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case models.IsConfiguration(err):
		return "config"
	}
	return "error"
}
