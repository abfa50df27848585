package service

import (
	"sync/atomic"
	"time"

	"trade_engine/internal/models"
)

// StatusSource reports the engine's live status.
type StatusSource interface {
	Status() models.BotStatus
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time
	source    StatusSource
}

func NewState(source StatusSource) *State {
	return &State{startedAt: time.Now(), source: source}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }

// Ready is false until startup finished and while any exchange in use has
// gone quiet.
func (s *State) Ready() bool {
	if !s.ready.Load() {
		return false
	}
	return len(s.Status().Stale) == 0
}

func (s *State) Status() models.BotStatus {
	if s.source == nil {
		return models.BotStatus{Uptime: s.Uptime()}
	}
	return s.source.Status()
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
