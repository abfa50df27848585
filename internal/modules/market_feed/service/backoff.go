package service

import "time"

// Backoff doubles the delay per retry up to Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b Backoff) Delay(retry int) time.Duration {
	if retry < 0 {
		return b.Base
	}
	// 2^30 * base is past any sane cap
	if retry > 30 {
		return b.Cap
	}
	d := b.Base * time.Duration(1<<retry)
	if d > b.Cap || d <= 0 {
		return b.Cap
	}
	return d
}
