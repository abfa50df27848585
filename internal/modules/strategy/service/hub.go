package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"trade_engine/internal/indicator"
	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

// SignalSink receives every signal the hub produces.
type SignalSink interface {
	OnSignal(ctx context.Context, s models.Signal)
}

// PositionSource reports the caller-owned position of a strategy.
type PositionSource interface {
	PositionContext(strategyID, symbol string) PositionContext
}

// StreamSpec names one candle stream the hub consumes.
type StreamSpec struct {
	Exchange  string
	Symbol    string
	Timeframe string
}

func (s StreamSpec) Key() string { return s.Exchange + ":" + s.Symbol + ":" + s.Timeframe }

// Hub keeps a bounded window per stream and evaluates every strategy bound
// to the stream on each closed candle.
type Hub struct {
	eval       *Evaluator
	windowSize int
	positions  PositionSource
	sink       SignalSink

	mu         sync.Mutex
	windows    map[string][]models.Candle
	strategies map[string][]models.StrategyConfig
	// stream key -> strategy id
	rolling   map[string]map[string]*Rolling
	lastClose map[string]map[string]float64
}

func NewHub(eval *Evaluator, windowSize int, positions PositionSource, sink SignalSink) *Hub {
	if windowSize < 2 {
		windowSize = 300
	}
	return &Hub{
		eval:       eval,
		windowSize: windowSize,
		positions:  positions,
		sink:       sink,
		windows:    make(map[string][]models.Candle),
		strategies: make(map[string][]models.StrategyConfig),
		rolling:    make(map[string]map[string]*Rolling),
		lastClose:  make(map[string]map[string]float64),
	}
}

// Add validates and binds a strategy to its stream.
func (h *Hub) Add(cfg models.StrategyConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	spec := StreamSpec{Exchange: cfg.Exchange, Symbol: cfg.Symbol, Timeframe: cfg.Timeframe}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.strategies[spec.Key()] {
		if existing.ID == cfg.ID {
			return &models.ConfigurationError{StrategyID: cfg.ID, Field: "id", Reason: "already running on " + spec.Key()}
		}
	}
	h.strategies[spec.Key()] = append(h.strategies[spec.Key()], cfg)

	r := NewRolling(cfg)
	for _, c := range h.windows[spec.Key()] {
		r.Push(c.Close)
	}
	if h.rolling[spec.Key()] == nil {
		h.rolling[spec.Key()] = make(map[string]*Rolling)
	}
	h.rolling[spec.Key()][cfg.ID] = r
	return nil
}

func (h *Hub) Strategies() []models.StrategyConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.StrategyConfig
	for _, list := range h.strategies {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Streams lists the distinct streams strategies are bound to.
func (h *Hub) Streams() []StreamSpec {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]StreamSpec, 0, len(h.strategies))
	for _, list := range h.strategies {
		c := list[0]
		out = append(out, StreamSpec{Exchange: c.Exchange, Symbol: c.Symbol, Timeframe: c.Timeframe})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Warm seeds a window from history without evaluating.
func (h *Hub) Warm(candles []models.Candle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range candles {
		h.appendLocked(c)
	}
}

// OnCandle appends c to its window and runs the bound strategies
// synchronously. Late or repeated candles are ignored.
func (h *Hub) OnCandle(ctx context.Context, c models.Candle) {
	h.mu.Lock()
	if !h.appendLocked(c) {
		h.mu.Unlock()
		return
	}
	key := c.StreamKey()
	window := append([]models.Candle(nil), h.windows[key]...)
	strategies := append([]models.StrategyConfig(nil), h.strategies[key]...)
	rolled := make([]map[string]indicator.Series, len(strategies))
	for i, cfg := range strategies {
		if r := h.rolling[key][cfg.ID]; r != nil {
			rolled[i] = r.Snapshot(len(window))
		}
	}
	reference := h.referenceLocked(c)
	h.mu.Unlock()

	for i, cfg := range strategies {
		if err := h.evaluate(ctx, cfg, window, rolled[i], reference); err != nil {
			logger.Error("[STRAT] %s on %s: %v", cfg.Key(), key, err)
		}
	}
}

func (h *Hub) evaluate(ctx context.Context, cfg models.StrategyConfig, window []models.Candle, rolled map[string]indicator.Series, reference float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panicked: %v", r)
		}
	}()
	var pos PositionContext
	if h.positions != nil {
		pos = h.positions.PositionContext(cfg.ID, cfg.Symbol)
	}
	set := buildIndicatorSet(cfg, window, reference, rolled)
	sig, ok := h.eval.Evaluate(cfg, window, set, pos)
	if !ok {
		return nil
	}
	logger.Debug("[STRAT] %s %s %s @ %.8f conf=%.2f", cfg.Key(), sig.Symbol, sig.Action, sig.SuggestedPrice, sig.Confidence)
	if h.sink != nil {
		h.sink.OnSignal(ctx, sig)
	}
	return nil
}

func (h *Hub) appendLocked(c models.Candle) bool {
	key := c.StreamKey()
	w := h.windows[key]
	if n := len(w); n > 0 && !c.Start.After(w[n-1].Start) {
		return false
	}
	w = append(w, c)
	if len(w) > h.windowSize {
		w = append(w[:0:0], w[len(w)-h.windowSize:]...)
	}
	h.windows[key] = w
	for _, r := range h.rolling[key] {
		r.Push(c.Close)
	}

	sym := normalizeSymbol(c.Symbol)
	if h.lastClose[sym] == nil {
		h.lastClose[sym] = make(map[string]float64)
	}
	h.lastClose[sym][c.Exchange] = c.Close
	return true
}

// referenceLocked is the last close of the same instrument on another venue.
func (h *Hub) referenceLocked(c models.Candle) float64 {
	venues := h.lastClose[normalizeSymbol(c.Symbol)]
	names := make([]string, 0, len(venues))
	for name := range venues {
		if name != c.Exchange {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return 0
	}
	sort.Strings(names)
	return venues[names[0]]
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "-", ""))
}
