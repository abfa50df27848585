package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/metrics"
	"trade_engine/pkg/tracing"
)

// Consumer is one downstream of accepted signals.
type Consumer interface {
	Name() string
	Deliver(ctx context.Context, s models.Signal) error
}

type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error
}

type Options struct {
	Bucket      time.Duration
	TTL         time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

func (o *Options) defaults() {
	if o.Bucket <= 0 {
		o.Bucket = time.Minute
	}
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
}

type dedupKey struct {
	strategyID string
	symbol     string
	bucket     int64
}

// Dispatcher drops duplicate signals and fans the rest out to consumers
// without blocking the caller.
type Dispatcher struct {
	opts        Options
	consumers   []Consumer
	deadLetters DeadLetterStore
	now         func() time.Time

	mu        sync.Mutex
	seen      map[dedupKey]time.Time
	lastSweep time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options, deadLetters DeadLetterStore, consumers ...Consumer) *Dispatcher {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		opts:        opts,
		consumers:   consumers,
		deadLetters: deadLetters,
		now:         time.Now,
		seen:        make(map[dedupKey]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Dispatch returns false for a signal already seen in its time bucket.
func (d *Dispatcher) Dispatch(ctx context.Context, s models.Signal) (bool, error) {
	if s.Action != models.ActionBuy && s.Action != models.ActionSell {
		return false, fmt.Errorf("signal %s has no action", s.ID)
	}
	span, _ := tracing.StartSpan(ctx, "dispatcher.dispatch", map[string]interface{}{
		"strategy": s.StrategyID,
		"symbol":   s.Symbol,
		"action":   string(s.Action),
	})

	if d.ctx.Err() != nil {
		err := fmt.Errorf("dispatcher closed")
		tracing.Finish(span, err)
		return false, err
	}
	if !d.admit(s) {
		span.SetTag("duplicate", true)
		span.Finish()
		return false, nil
	}

	metrics.SignalsDispatched.WithLabelValues(s.StrategyID, string(s.Action)).Inc()
	for _, c := range d.consumers {
		d.wg.Add(1)
		go d.deliver(c, s)
	}
	span.Finish()
	return true, nil
}

func (d *Dispatcher) admit(s models.Signal) bool {
	now := d.now()
	key := dedupKey{
		strategyID: s.StrategyID,
		symbol:     s.Symbol,
		bucket:     s.GeneratedAt.Truncate(d.opts.Bucket).UnixNano(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Sub(d.lastSweep) >= d.opts.Bucket {
		for k, exp := range d.seen {
			if !now.Before(exp) {
				delete(d.seen, k)
			}
		}
		d.lastSweep = now
	}
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false
	}
	d.seen[key] = now.Add(d.opts.TTL)
	return true
}

func (d *Dispatcher) deliver(c Consumer, s models.Signal) {
	defer d.wg.Done()

	var (
		err      error
		attempts int
	)
retry:
	for attempts < d.opts.MaxAttempts {
		attempts++
		if err = c.Deliver(d.ctx, s); err == nil {
			return
		}
		logger.Warn("[DISPATCH] %s -> %s attempt %d/%d: %v", s.ID, c.Name(), attempts, d.opts.MaxAttempts, err)
		if attempts == d.opts.MaxAttempts {
			break
		}
		select {
		case <-d.ctx.Done():
			// shutting down: park the signal instead of waiting out the backoff
			err = fmt.Errorf("abandoned at shutdown after %d attempts: %w", attempts, err)
			break retry
		case <-time.After(time.Duration(attempts) * d.opts.RetryDelay):
		}
	}

	metrics.DeadLetters.WithLabelValues(c.Name()).Inc()
	logger.Error("[DISPATCH] %s -> %s dead-lettered: %v", s.ID, c.Name(), err)
	if d.deadLetters == nil {
		return
	}
	dl := models.DeadLetter{
		ID:       uuid.NewString(),
		Signal:   s,
		Consumer: c.Name(),
		Error:    err.Error(),
		Attempts: attempts,
		FailedAt: d.now().UTC(),
	}
	if serr := d.deadLetters.SaveDeadLetter(context.Background(), dl); serr != nil {
		logger.Error("[DISPATCH] save dead letter %s: %v", dl.ID, serr)
	}
}

// Close waits for in-flight deliveries until ctx ends. Deliveries still
// waiting to retry are then dead-lettered.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
