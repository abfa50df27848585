package service

import (
	"sync"
	"time"
)

type verdict int

const (
	fresh verdict = iota
	duplicate
	outOfOrder
)

// dedupCache remembers the last delivered candle start per stream.
type dedupCache struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newDedupCache() *dedupCache {
	return &dedupCache{last: make(map[string]time.Time)}
}

func (d *dedupCache) check(key string, start time.Time) verdict {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, ok := d.last[key]
	switch {
	case !ok || start.After(prev):
		d.last[key] = start
		return fresh
	case start.Equal(prev):
		return duplicate
	default:
		return outOfOrder
	}
}
