package board

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/naptimegame/board-client/internal/engineapi"
)

// Dispatcher submits fully-resolved actions to the remote engine. One
// mutation of any kind may be in flight at a time, enforced by the shared
// gate; overlapping calls are rejected with ErrMutationInFlight rather than
// queued. The dispatcher never touches the game snapshot — the next poll is
// the sole source of post-action truth.
type Dispatcher struct {
	client   *engineapi.Client
	gate     *Gate
	gameID   string
	viewerID string

	// clearSelection is invoked after a successful play or tussle so the
	// in-progress target selection is discarded. Set by the controller.
	clearSelection func()

	mu      sync.Mutex
	message string
}

func NewDispatcher(client *engineapi.Client, gate *Gate, gameID, viewerID string) *Dispatcher {
	return &Dispatcher{client: client, gate: gate, gameID: gameID, viewerID: viewerID}
}

func (d *Dispatcher) OnSelectionCommitted(fn func()) { d.clearSelection = fn }

// Gate exposes the shared in-flight lock so other components (the scheduler,
// the controller) can consult it before attempting a submission.
func (d *Dispatcher) Gate() *Gate { return d.gate }

// LastMessage returns the most recent human-readable outcome, success or
// rejection, for the board to display.
func (d *Dispatcher) LastMessage() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.message
}

func (d *Dispatcher) setMessage(msg string) {
	d.mu.Lock()
	d.message = msg
	d.mu.Unlock()
}

// PlayCard submits a play-card action with the resolved targets and cost
// choice.
func (d *Dispatcher) PlayCard(ctx context.Context, desc engineapi.ActionDescriptor, res Resolution) error {
	return d.submit(ctx, "play_card", true, func(ctx context.Context) (string, error) {
		sleepCard := ""
		if res.AltCost != nil {
			sleepCard = *res.AltCost
		}
		return d.client.PlayCard(ctx, d.gameID, d.viewerID, desc.CardID, res.Targets, sleepCard)
	})
}

// Tussle submits a combat action. An empty resolved target list means a
// direct attack: the attacker is carried on the descriptor and the defender
// is omitted.
func (d *Dispatcher) Tussle(ctx context.Context, desc engineapi.ActionDescriptor, res Resolution) error {
	return d.submit(ctx, "tussle", true, func(ctx context.Context) (string, error) {
		defender := ""
		if len(res.Targets) > 0 {
			defender = res.Targets[0]
		}
		return d.client.Tussle(ctx, d.gameID, d.viewerID, desc.CardID, defender)
	})
}

func (d *Dispatcher) EndTurn(ctx context.Context) error {
	return d.submit(ctx, "end_turn", false, func(ctx context.Context) (string, error) {
		return d.client.EndTurn(ctx, d.gameID, d.viewerID)
	})
}

// AutoTurn submits the automated opponent's turn. Dispatched only by the
// turn scheduler.
func (d *Dispatcher) AutoTurn(ctx context.Context, opponentID string) error {
	return d.submit(ctx, "auto_turn", false, func(ctx context.Context) (string, error) {
		return d.client.RunAutomatedTurn(ctx, d.gameID, opponentID)
	})
}

func (d *Dispatcher) submit(ctx context.Context, kind string, commitsSelection bool, call func(context.Context) (string, error)) error {
	if !d.gate.TryAcquire() {
		log.Debug().Str("kind", kind).Msg("mutation rejected, another is in flight")
		return ErrMutationInFlight
	}
	defer d.gate.Release()

	mid := uuid.NewString()
	msg, err := call(ctx)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("mutation", mid).Msg("mutation rejected by engine")
		d.setMessage(err.Error())
		return err
	}
	log.Info().Str("kind", kind).Str("mutation", mid).Str("game", d.gameID).Msg("mutation accepted")
	d.setMessage(msg)
	if commitsSelection && d.clearSelection != nil {
		d.clearSelection()
	}
	return nil
}
