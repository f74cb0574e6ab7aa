package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/naptimegame/board-client/internal/engineapi"
)

// Synchronizer keeps a local view of the game eventually consistent with the
// remote engine by polling on a fixed cadence. Polls are strictly sequential:
// the next cycle is scheduled only after the previous one completes, so the
// interval is a lower bound on spacing, not a fixed-rate tick.
type Synchronizer struct {
	client   *engineapi.Client
	gameID   string
	viewerID string
	interval time.Duration

	// onUpdate fires after every completed poll cycle; onInvalid fires
	// exactly once when the engine reports the session gone.
	onUpdate  func()
	onInvalid func()

	mu          sync.Mutex
	state       *engineapi.GameStateView
	actions     []engineapi.ActionDescriptor
	loading     bool
	lastErr     error
	invalidated bool
}

func NewSynchronizer(client *engineapi.Client, gameID, viewerID string, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Synchronizer{
		client:   client,
		gameID:   gameID,
		viewerID: viewerID,
		interval: interval,
		loading:  true,
	}
}

func (s *Synchronizer) OnUpdate(fn func())  { s.onUpdate = fn }
func (s *Synchronizer) OnInvalid(fn func()) { s.onInvalid = fn }

// Run polls until the context is cancelled or the session is invalidated.
// Transient fetch errors leave the previous snapshot in place and are retried
// on the next tick; they never stop the loop.
func (s *Synchronizer) Run(ctx context.Context) {
	for {
		if done := s.cycle(ctx); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// cycle performs one poll: the state fetch, and the legal-actions fetch only
// while it is the viewer's turn. Returns true when polling must stop.
func (s *Synchronizer) cycle(ctx context.Context) bool {
	state, err := s.client.FetchState(ctx, s.gameID, s.viewerID)
	if err != nil {
		if errors.Is(err, engineapi.ErrSessionNotFound) {
			s.markInvalid()
			return true
		}
		if ctx.Err() != nil {
			return true
		}
		log.Debug().Err(err).Str("game", s.gameID).Msg("state poll failed, keeping stale snapshot")
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		return false
	}

	var actions []engineapi.ActionDescriptor
	if state.WhoseTurn == s.viewerID {
		actions, err = s.client.FetchActions(ctx, s.gameID, s.viewerID)
		if err != nil {
			if errors.Is(err, engineapi.ErrSessionNotFound) {
				s.markInvalid()
				return true
			}
			log.Debug().Err(err).Str("game", s.gameID).Msg("actions poll failed")
			// Keep the previous action list alongside the fresh state.
			s.mu.Lock()
			actions = s.actions
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.state = state
	s.actions = actions
	s.loading = false
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
	return false
}

func (s *Synchronizer) markInvalid() {
	s.mu.Lock()
	already := s.invalidated
	s.invalidated = true
	s.mu.Unlock()
	if already {
		return
	}
	log.Warn().Str("game", s.gameID).Msg("engine no longer knows this session")
	if s.onInvalid != nil {
		s.onInvalid()
	}
}

func (s *Synchronizer) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// Snapshot returns the latest known state and legal actions. The state may be
// stale when Err is non-nil; it is nil only before the first successful poll.
func (s *Synchronizer) Snapshot() (*engineapi.GameStateView, []engineapi.ActionDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.actions
}

// Loading reports whether the first successful state fetch is still pending.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the most recent fetch error, nil after a clean cycle.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Invalidated reports whether the engine declared the session gone.
func (s *Synchronizer) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}
