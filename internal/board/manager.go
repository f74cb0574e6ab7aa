package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/naptimegame/board-client/internal/engineapi"
)

var ErrBoardNotFound = errors.New("board not found")

// Manager owns one running controller per game session. An invalidated
// session is removed entirely, so reopening it is a fresh bootstrap rather
// than a partial recovery.
type Manager struct {
	client        *engineapi.Client
	pollInterval  time.Duration
	autoTurnDelay time.Duration

	// Fan-out hooks, set once before the first Open.
	onChange   func(gameID string, snap Snapshot)
	onGone     func(gameID string)
	onGameOver func(gameID, winner string)

	mu     sync.RWMutex
	boards map[string]*Controller
}

func NewManager(client *engineapi.Client, pollInterval, autoTurnDelay time.Duration) *Manager {
	return &Manager{
		client:        client,
		pollInterval:  pollInterval,
		autoTurnDelay: autoTurnDelay,
		boards:        make(map[string]*Controller),
	}
}

func (m *Manager) OnChange(fn func(gameID string, snap Snapshot)) { m.onChange = fn }
func (m *Manager) OnGone(fn func(gameID string))                  { m.onGone = fn }
func (m *Manager) OnGameOver(fn func(gameID, winner string))      { m.onGameOver = fn }

// Open creates and starts a board for (gameID, viewerID), or returns the
// running one. A board already open for a different viewer is returned as-is;
// one session renders for one viewer at a time.
func (m *Manager) Open(ctx context.Context, gameID, viewerID string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.boards[gameID]; c != nil {
		return c
	}
	c := NewController(m.client, gameID, viewerID, m.pollInterval, m.autoTurnDelay)
	c.OnChange(func(snap Snapshot) {
		if m.onChange != nil {
			m.onChange(gameID, snap)
		}
	})
	c.OnGameOver(func(winner string) {
		if m.onGameOver != nil {
			m.onGameOver(gameID, winner)
		}
	})
	c.OnGone(func() {
		m.remove(gameID)
		if m.onGone != nil {
			m.onGone(gameID)
		}
	})
	m.boards[gameID] = c
	c.Start(ctx)
	log.Info().Str("game", gameID).Str("viewer", viewerID).Msg("board opened")
	return c
}

func (m *Manager) Get(gameID string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.boards[gameID]
	if c == nil {
		return nil, ErrBoardNotFound
	}
	return c, nil
}

// Close tears down one board (navigation away, session end).
func (m *Manager) Close(gameID string) {
	m.mu.Lock()
	c := m.boards[gameID]
	delete(m.boards, gameID)
	m.mu.Unlock()
	if c != nil {
		c.Close()
		log.Info().Str("game", gameID).Msg("board closed")
	}
}

func (m *Manager) remove(gameID string) {
	m.mu.Lock()
	delete(m.boards, gameID)
	m.mu.Unlock()
}
