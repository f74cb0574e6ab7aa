package board

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/naptimegame/board-client/internal/engineapi"
)

type autoTurnKey struct {
	turn     int
	opponent string
}

// Scheduler arms a one-shot, self-cancelling timer that runs the automated
// opponent's turn after a short settling delay. The delay is a deliberate
// debounce: it gives the human a visual beat and keeps the trigger out of
// mid-transition renders. The timer is keyed by (turn, opponent); any change
// in the observed conditions before it fires cancels it, and a key is never
// submitted twice.
type Scheduler struct {
	delay time.Duration

	// conditions returns the latest snapshot and whether a mutation is in
	// flight; submit dispatches the automated turn. Both are supplied by the
	// controller.
	conditions func() (*engineapi.GameStateView, bool)
	submit     func(opponentID string)

	mu      sync.Mutex
	timer   *time.Timer
	armed   autoTurnKey
	hasTmr  bool
	fired   map[autoTurnKey]bool
	stopped bool
}

func NewScheduler(delay time.Duration, conditions func() (*engineapi.GameStateView, bool), submit func(opponentID string)) *Scheduler {
	if delay <= 0 {
		delay = time.Second
	}
	return &Scheduler{
		delay:      delay,
		conditions: conditions,
		submit:     submit,
		fired:      make(map[autoTurnKey]bool),
	}
}

// Observe re-evaluates the trigger conditions. Called on every synchronized
// update and after every local transition.
func (s *Scheduler) Observe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	key, want := s.eligible()
	if s.hasTmr {
		if want && key == s.armed {
			return
		}
		// Conditions moved under the armed timer; cancel before anything
		// stale can fire.
		s.timer.Stop()
		s.timer = nil
		s.hasTmr = false
	}
	if !want {
		return
	}
	s.armed = key
	s.hasTmr = true
	s.timer = time.AfterFunc(s.delay, func() { s.fire(key) })
	log.Debug().Int("turn", key.turn).Str("opponent", key.opponent).Msg("automated turn armed")
}

// eligible computes whether an automated turn should be scheduled right now.
// Assumes the lock is held.
func (s *Scheduler) eligible() (autoTurnKey, bool) {
	state, pending := s.conditions()
	if state == nil || pending || state.Winner != "" {
		return autoTurnKey{}, false
	}
	active, ok := state.Players[state.WhoseTurn]
	if !ok || !active.Automated {
		return autoTurnKey{}, false
	}
	key := autoTurnKey{turn: state.Turn, opponent: state.WhoseTurn}
	if s.fired[key] {
		return autoTurnKey{}, false
	}
	return key, true
}

func (s *Scheduler) fire(key autoTurnKey) {
	s.mu.Lock()
	if s.stopped || !s.hasTmr || s.armed != key {
		s.mu.Unlock()
		return
	}
	s.hasTmr = false
	s.timer = nil
	// Conditions must still hold at fire time; the turn may already be
	// advancing under the armed timer.
	current, ok := s.eligible()
	if !ok || current != key {
		s.mu.Unlock()
		return
	}
	s.fired[key] = true
	s.mu.Unlock()

	log.Info().Int("turn", key.turn).Str("opponent", key.opponent).Msg("running automated turn")
	s.submit(key.opponent)
}

// Stop cancels any pending timer and prevents future arming. Called on board
// teardown so no orphaned callback mutates state afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.hasTmr {
		s.timer.Stop()
		s.timer = nil
		s.hasTmr = false
	}
}
