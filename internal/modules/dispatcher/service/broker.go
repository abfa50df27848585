package service

import (
	"context"
	"sync"

	"trade_engine/internal/models"
)

// Broker fans signals out to per-user subscribers. A slow subscriber loses
// its oldest buffered signal.
type Broker struct {
	buffer int

	mu     sync.Mutex
	next   int
	subs   map[string]map[int]chan models.Signal
	owners map[string]string
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Broker{
		buffer: buffer,
		subs:   make(map[string]map[int]chan models.Signal),
		owners: make(map[string]string),
	}
}

// Subscribe returns the user's signal stream and a cancel func that closes it.
func (b *Broker) Subscribe(userID string) (<-chan models.Signal, func()) {
	ch := make(chan models.Signal, b.buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan models.Signal)
	}
	b.subs[userID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], id)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broker) Publish(userID string, s models.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[userID] {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (b *Broker) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// Bind routes signals of a strategy to the user that runs it.
func (b *Broker) Bind(strategyID, userID string) {
	b.mu.Lock()
	b.owners[strategyID] = userID
	b.mu.Unlock()
}

func (b *Broker) Unbind(strategyID string) {
	b.mu.Lock()
	delete(b.owners, strategyID)
	b.mu.Unlock()
}

func (b *Broker) Name() string { return "signal_stream" }

// Deliver publishes to the owner of the signal's strategy. Unowned signals are dropped.
func (b *Broker) Deliver(_ context.Context, s models.Signal) error {
	b.mu.Lock()
	userID, ok := b.owners[s.StrategyID]
	b.mu.Unlock()
	if ok {
		b.Publish(userID, s)
	}
	return nil
}
