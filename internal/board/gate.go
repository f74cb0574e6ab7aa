package board

import (
	"errors"
	"sync"
)

// ErrMutationInFlight is returned when a second mutation is attempted while
// one is already outstanding.
var ErrMutationInFlight = errors.New("a mutation is already in flight")

// Gate is the single process-wide in-flight-mutation lock. Every code path
// that can submit a mutation must acquire it first; overlapping attempts are
// rejected, never queued.
type Gate struct {
	mu   sync.Mutex
	busy bool
}

// TryAcquire claims the gate. It returns false when a mutation is already
// outstanding.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	return true
}

// Release frees the gate once the server has responded, success or failure.
func (g *Gate) Release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

// Pending reports whether a mutation is currently outstanding.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}
