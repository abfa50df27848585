package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"trade_engine/internal/models"
	backtest "trade_engine/internal/modules/backtest/service"
	"trade_engine/internal/modules/config"
	dispatcher "trade_engine/internal/modules/dispatcher/service"
	feed "trade_engine/internal/modules/market_feed/service"
	risk "trade_engine/internal/modules/risk/service"
	storage "trade_engine/internal/modules/storage/service"
	strategy "trade_engine/internal/modules/strategy/service"
	"trade_engine/pkg/logger"
)

var ErrSessionExists = errors.New("session already running")
var ErrNoSession = errors.New("no session for user")

type Deps struct {
	Config     *config.Config
	Feed       *feed.Feed
	Evaluator  *strategy.Evaluator
	Risk       *risk.Manager
	Dispatcher *dispatcher.Dispatcher
	Broker     *dispatcher.Broker
	Pool       *backtest.Pool
	Optimizer  *backtest.Optimizer
	Store      storage.Store
}

// Manager owns the live sessions and is the surface the API layer calls.
type Manager struct {
	cfg        *config.Config
	feed       *feed.Feed
	eval       *strategy.Evaluator
	risk       *risk.Manager
	dispatcher *dispatcher.Dispatcher
	broker     *dispatcher.Broker
	pool       *backtest.Pool
	optimizer  *backtest.Optimizer
	store      storage.Store

	startedAt  time.Time
	lastSignal atomic.Int64
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(d Deps) *Manager {
	return &Manager{
		cfg:        d.Config,
		feed:       d.Feed,
		eval:       d.Evaluator,
		risk:       d.Risk,
		dispatcher: d.Dispatcher,
		broker:     d.Broker,
		pool:       d.Pool,
		optimizer:  d.Optimizer,
		store:      d.Store,
		startedAt:  time.Now(),
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
}

func (m *Manager) noteSignal(at time.Time) {
	n := at.UnixNano()
	for {
		cur := m.lastSignal.Load()
		if n <= cur || m.lastSignal.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Start validates every config, records new revisions and starts one task
// per distinct stream. A bad config fails the whole call before anything runs.
func (m *Manager) Start(ctx context.Context, userID string, configs []models.StrategyConfig) (*Session, error) {
	if len(configs) == 0 {
		return nil, &models.ConfigurationError{Field: "strategies", Reason: "nothing to run"}
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		UserID:  userID,
		Account: risk.NewAccount(m.cfg.Risk.StartingBalance),
		m:       m,
		cfgs:    make(map[string]models.StrategyConfig, len(configs)),
		model:   m.cfg.Backtest.Execution,
		ctx:     sctx,
		cancel:  cancel,
		started: m.now(),
	}
	s.hub = strategy.NewHub(m.eval, m.cfg.Feed.WindowSize, s, s)
	for _, cfg := range configs {
		if _, err := m.feed.Exchange(cfg.Exchange); err != nil {
			cancel()
			return nil, &models.ConfigurationError{StrategyID: cfg.ID, Field: "exchange", Reason: err.Error()}
		}
		if err := s.hub.Add(cfg); err != nil {
			cancel()
			return nil, err
		}
		s.cfgs[cfg.ID] = cfg
	}

	m.mu.Lock()
	if _, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		cancel()
		return nil, ErrSessionExists
	}
	m.sessions[userID] = s
	m.mu.Unlock()

	for _, cfg := range configs {
		m.recordRevision(ctx, cfg)
		m.broker.Bind(cfg.ID, userID)
	}
	if m.cfg.Dispatcher.ExecuteOrders {
		m.syncBalance(ctx, s, configs[0].Exchange)
	}

	for _, spec := range s.hub.Streams() {
		s.wg.Add(1)
		go s.runStream(spec, m.cfg.Feed.WarmupCandles)
	}
	logger.Info("[RUNNER] session %s started with %d strategies", userID, len(configs))
	return s, nil
}

func (m *Manager) recordRevision(ctx context.Context, cfg models.StrategyConfig) {
	if latest, err := m.store.LatestStrategy(ctx, cfg.ID); err == nil && latest.Revision >= cfg.Revision {
		return
	}
	if err := m.store.SaveStrategy(ctx, cfg); err != nil {
		logger.Warn("[RUNNER] store strategy %s: %v", cfg.Key(), err)
	}
}

// syncBalance replaces the paper balance with the venue balance when the
// account is reachable.
func (m *Manager) syncBalance(ctx context.Context, s *Session, exchange string) {
	ex, err := m.feed.Exchange(exchange)
	if err != nil {
		return
	}
	bal, err := ex.Balance(ctx)
	if err != nil {
		logger.Warn("[RUNNER] %s balance unavailable, keeping %.2f: %v", exchange, s.Account.Balance(), err)
		return
	}
	s.Account.SetBalance(bal)
}

// Stop cancels the user's streams and waits for them to release the feed.
func (m *Manager) Stop(userID string) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	s.stop()
	logger.Info("[RUNNER] session %s stopped", userID)
	return nil
}

func (m *Manager) Session(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Status reports uptime, activity and per-exchange heartbeat staleness.
func (m *Manager) Status() models.BotStatus {
	now := m.now()
	st := models.BotStatus{
		Uptime:     now.Sub(m.startedAt),
		Heartbeats: m.feed.Heartbeats(),
	}
	if n := m.lastSignal.Load(); n > 0 {
		st.LastSignalAt = time.Unix(0, n).UTC()
	}

	m.mu.Lock()
	st.ActiveSessions = len(m.sessions)
	used := map[string]bool{}
	for _, s := range m.sessions {
		st.ActiveStrategies += len(s.cfgs)
		for _, cfg := range s.cfgs {
			used[cfg.Exchange] = true
		}
	}
	m.mu.Unlock()

	for name := range used {
		at, ok := st.Heartbeats[name]
		if !ok || now.Sub(at) > m.cfg.Feed.StaleAfter {
			st.Stale = append(st.Stale, name)
		}
	}
	sort.Strings(st.Stale)
	return st
}

// SignalStream returns the user's dispatched signals until cancel is called.
func (m *Manager) SignalStream(userID string) (<-chan models.Signal, func()) {
	return m.broker.Subscribe(userID)
}

// RunBacktest loads the range through the feed, waits for a pool worker and
// persists the finished run. A failed run leaves nothing behind.
func (m *Manager) RunBacktest(ctx context.Context, cfg models.StrategyConfig, rng models.DataRange) (*models.BacktestRun, error) {
	if err := strategy.Validate(cfg); err != nil {
		return nil, err
	}
	src := backtest.ExchangeSource{
		Loader: m.feed, Exchange: cfg.Exchange, Symbol: cfg.Symbol, Timeframe: cfg.Timeframe, Range: rng,
	}
	run, err := m.pool.Submit(ctx, backtest.Job{
		Config:          cfg,
		Source:          src,
		Execution:       m.cfg.Backtest.Execution,
		StartingBalance: m.cfg.Backtest.StartingBalance,
	})
	if err != nil {
		return nil, err
	}
	m.recordRevision(ctx, cfg)
	if err := m.store.SaveBacktest(ctx, run); err != nil {
		return nil, errors.Wrap(err, "persist backtest")
	}
	return run, nil
}

// Optimize loads the range once and sweeps grid over it.
func (m *Manager) Optimize(ctx context.Context, cfg models.StrategyConfig, rng models.DataRange, grid map[string][]float64) ([]backtest.Trial, error) {
	if err := strategy.Validate(cfg); err != nil {
		return nil, err
	}
	candles, err := backtest.ExchangeSource{
		Loader: m.feed, Exchange: cfg.Exchange, Symbol: cfg.Symbol, Timeframe: cfg.Timeframe, Range: rng,
	}.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", cfg.Exchange, cfg.Symbol, err)
	}
	return m.optimizer.GridSearch(ctx, cfg, grid, backtest.SliceSource(candles), m.cfg.Backtest.Execution, m.cfg.Backtest.StartingBalance)
}

// WalkForward loads the range once, splits it into windows and validates
// each in-sample grid winner on the slice that follows it.
func (m *Manager) WalkForward(ctx context.Context, cfg models.StrategyConfig, rng models.DataRange, grid map[string][]float64, windows int, trainFrac float64) ([]backtest.WalkForwardStep, error) {
	if err := strategy.Validate(cfg); err != nil {
		return nil, err
	}
	candles, err := backtest.ExchangeSource{
		Loader: m.feed, Exchange: cfg.Exchange, Symbol: cfg.Symbol, Timeframe: cfg.Timeframe, Range: rng,
	}.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", cfg.Exchange, cfg.Symbol, err)
	}
	return m.optimizer.WalkForward(ctx, cfg, grid, candles, windows, trainFrac, m.cfg.Backtest.Execution, m.cfg.Backtest.StartingBalance)
}
