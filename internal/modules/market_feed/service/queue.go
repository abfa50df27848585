package service

import (
	"context"
	"sync"

	"trade_engine/internal/models"
)

// dropQueue is a bounded FIFO that evicts its oldest item when full.
type dropQueue struct {
	mu    sync.Mutex
	items []models.Candle
	depth int
	ready chan struct{}
}

func newDropQueue(depth int) *dropQueue {
	if depth <= 0 {
		depth = 1
	}
	return &dropQueue{
		items: make([]models.Candle, 0, depth),
		depth: depth,
		ready: make(chan struct{}, 1),
	}
}

// push reports whether an older candle had to be dropped.
func (q *dropQueue) push(c models.Candle) bool {
	q.mu.Lock()
	dropped := false
	if len(q.items) == q.depth {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		dropped = true
	}
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped
}

func (q *dropQueue) pop(ctx context.Context) (models.Candle, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return c, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.Candle{}, false
		case <-q.ready:
		}
	}
}
