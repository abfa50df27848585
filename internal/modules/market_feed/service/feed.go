package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
)

type Options struct {
	QueueDepth int
	Backoff    Backoff
}

// Feed multiplexes one upstream connection per (exchange, symbol, timeframe)
// to any number of subscribers.
type Feed struct {
	opts      Options
	exchanges map[string]Exchange
	dedup     *dedupCache

	mu      sync.Mutex
	streams map[string]*stream

	hbMu       sync.RWMutex
	heartbeats map[string]time.Time
}

type stream struct {
	key       string
	ex        Exchange
	symbol    string
	timeframe string
	cancel    context.CancelFunc
	done      chan struct{}
	subs      map[*Subscription]struct{}
}

func NewFeed(opts Options, exchanges ...Exchange) *Feed {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 1000
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = Backoff{Base: time.Second, Cap: 30 * time.Second}
	}
	f := &Feed{
		opts:       opts,
		exchanges:  make(map[string]Exchange, len(exchanges)),
		dedup:      newDedupCache(),
		streams:    make(map[string]*stream),
		heartbeats: make(map[string]time.Time),
	}
	for _, ex := range exchanges {
		f.exchanges[ex.Name()] = ex
	}
	return f
}

func StreamKey(exchange, symbol, timeframe string) string {
	return exchange + ":" + symbol + ":" + timeframe
}

func (f *Feed) Exchange(name string) (Exchange, error) {
	ex, ok := f.exchanges[strings.ToLower(name)]
	if !ok {
		return nil, &models.ConfigurationError{Field: "exchange", Reason: fmt.Sprintf("unknown exchange %q", name)}
	}
	return ex, nil
}

func (f *Feed) Exchanges() []string {
	out := make([]string, 0, len(f.exchanges))
	for name := range f.exchanges {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// History fetches recent closed candles over REST, used to warm up windows.
func (f *Feed) History(ctx context.Context, exchange, symbol, timeframe string, limit int) ([]models.Candle, error) {
	ex, err := f.Exchange(exchange)
	if err != nil {
		return nil, err
	}
	return ex.Candles(ctx, symbol, timeframe, limit)
}

func (f *Feed) Range(ctx context.Context, exchange, symbol, timeframe string, r models.DataRange) ([]models.Candle, error) {
	ex, err := f.Exchange(exchange)
	if err != nil {
		return nil, err
	}
	return ex.CandlesBetween(ctx, symbol, timeframe, r.From, r.To)
}

// Subscribe attaches to the live stream, starting the upstream if needed.
// The subscription ends when ctx ends or Close is called.
func (f *Feed) Subscribe(ctx context.Context, exchange, symbol, timeframe string) (*Subscription, error) {
	ex, err := f.Exchange(exchange)
	if err != nil {
		return nil, err
	}
	key := StreamKey(ex.Name(), symbol, timeframe)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		key:    key,
		feed:   f,
		out:    make(chan models.Candle),
		queue:  newDropQueue(f.opts.QueueDepth),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	st, ok := f.streams[key]
	if !ok {
		upCtx, upCancel := context.WithCancel(context.Background())
		st = &stream{
			key:       key,
			ex:        ex,
			symbol:    symbol,
			timeframe: timeframe,
			cancel:    upCancel,
			done:      make(chan struct{}),
			subs:      make(map[*Subscription]struct{}),
		}
		f.streams[key] = st
		go f.run(upCtx, st)
	}
	st.subs[sub] = struct{}{}
	f.mu.Unlock()

	go sub.pump(subCtx)
	sub.mu.Lock()
	sub.stop = context.AfterFunc(ctx, sub.Close)
	sub.mu.Unlock()
	return sub, nil
}

func (f *Feed) run(ctx context.Context, st *stream) {
	defer close(st.done)
	retry := 0
	for {
		sink := &streamSink{feed: f, st: st}
		err := st.ex.Stream(ctx, st.symbol, st.timeframe, sink)
		if ctx.Err() != nil {
			return
		}
		if sink.connected {
			retry = 0
		}
		delay := f.opts.Backoff.Delay(retry)
		retry++
		metrics.FeedReconnects.WithLabelValues(st.ex.Name()).Inc()
		logger.Warn("[FEED] %s disconnected: %v, reconnect in %s", st.key, err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (f *Feed) deliver(st *stream, c models.Candle) {
	switch f.dedup.check(st.key, c.Start) {
	case duplicate:
		return
	case outOfOrder:
		metrics.CandlesRejected.WithLabelValues(st.key).Inc()
		logger.Warn("[FEED] %s out-of-order candle %s dropped", st.key, c.Start.Format(time.RFC3339))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range st.subs {
		if sub.queue.push(c) {
			metrics.CandlesDropped.WithLabelValues(st.key).Inc()
		}
	}
}

func (f *Feed) beat(exchange string, at time.Time) {
	f.hbMu.Lock()
	f.heartbeats[exchange] = at
	f.hbMu.Unlock()
}

// LastHeartbeat is the time exchange last produced any frame.
func (f *Feed) LastHeartbeat(exchange string) (time.Time, bool) {
	f.hbMu.RLock()
	defer f.hbMu.RUnlock()
	t, ok := f.heartbeats[exchange]
	return t, ok
}

func (f *Feed) Heartbeats() map[string]time.Time {
	f.hbMu.RLock()
	defer f.hbMu.RUnlock()
	out := make(map[string]time.Time, len(f.heartbeats))
	for k, v := range f.heartbeats {
		out[k] = v
	}
	return out
}

func (f *Feed) detach(sub *Subscription) {
	f.mu.Lock()
	st, ok := f.streams[sub.key]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(st.subs, sub)
	last := len(st.subs) == 0
	if last {
		delete(f.streams, sub.key)
	}
	f.mu.Unlock()

	if last {
		st.cancel()
		<-st.done
	}
}

// Close stops every upstream connection.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := make([]*Subscription, 0)
	for _, st := range f.streams {
		for sub := range st.subs {
			subs = append(subs, sub)
		}
	}
	f.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

type streamSink struct {
	feed      *Feed
	st        *stream
	connected bool
}

func (s *streamSink) Candle(c models.Candle) { s.feed.deliver(s.st, c) }

func (s *streamSink) Heartbeat(at time.Time) {
	s.connected = true
	s.feed.beat(s.st.ex.Name(), at)
}

// Subscription is a restartable candle sequence for one stream.
type Subscription struct {
	key    string
	feed   *Feed
	out    chan models.Candle
	queue  *dropQueue
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	stop func() bool
}

func (s *Subscription) Key() string { return s.key }

func (s *Subscription) C() <-chan models.Candle { return s.out }

// Close detaches from the upstream and waits for the delivery goroutine.
// The channel is closed once Close returns.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		if s.stop != nil {
			s.stop()
		}
		s.mu.Unlock()
		s.feed.detach(s)
		s.cancel()
		<-s.done
		close(s.out)
	})
}

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.done)
	for {
		c, ok := s.queue.pop(ctx)
		if !ok {
			return
		}
		select {
		case s.out <- c:
		case <-ctx.Done():
			return
		}
	}
}
