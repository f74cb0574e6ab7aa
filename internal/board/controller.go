package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/naptimegame/board-client/internal/engineapi"
)

var (
	ErrNoSuchAction = errors.New("no such action")
	ErrNoSelection  = errors.New("no selection in progress")
)

// SelectionView describes the in-progress secondary input for rendering.
type SelectionView struct {
	State       ResolverState              `json:"state"`
	Action      engineapi.ActionDescriptor `json:"action"`
	Targets     []string                   `json:"targets"`
	PaymentCard string                     `json:"paymentCard,omitempty"`
	PayEnergy   bool                       `json:"payEnergy,omitempty"`
	Ready       bool                       `json:"ready"`
}

// Snapshot is everything the board renders: the latest synchronized state,
// the legal actions, the selection in progress and the latest outcome line.
type Snapshot struct {
	GameID    string                       `json:"gameId"`
	ViewerID  string                       `json:"viewerId"`
	Loading   bool                         `json:"loading"`
	Stale     bool                         `json:"stale"`
	Pending   bool                         `json:"pending"`
	State     *engineapi.GameStateView     `json:"state,omitempty"`
	Actions   []engineapi.ActionDescriptor `json:"actions,omitempty"`
	Selection *SelectionView               `json:"selection,omitempty"`
	Message   string                       `json:"message,omitempty"`
	Gone      bool                         `json:"gone,omitempty"`
}

// Controller composes the synchronizer, resolver, dispatcher and scheduler
// into one session board. User intent routes through it: actions that need
// secondary input go to the resolver, everything else straight to the
// dispatcher.
type Controller struct {
	gameID   string
	viewerID string

	client     *engineapi.Client
	sync       *Synchronizer
	resolver   *TargetResolver
	dispatcher *Dispatcher
	scheduler  *Scheduler
	gate       *Gate

	onChange   func(Snapshot)
	onGone     func()
	onGameOver func(winnerName string)

	mu        sync.Mutex
	announced bool
	gone      bool

	cancel context.CancelFunc
}

func NewController(client *engineapi.Client, gameID, viewerID string, pollInterval, autoTurnDelay time.Duration) *Controller {
	c := &Controller{
		gameID:   gameID,
		viewerID: viewerID,
		client:   client,
		resolver: NewTargetResolver(),
		gate:     &Gate{},
	}
	c.sync = NewSynchronizer(client, gameID, viewerID, pollInterval)
	c.dispatcher = NewDispatcher(client, c.gate, gameID, viewerID)
	c.dispatcher.OnSelectionCommitted(func() {
		c.mu.Lock()
		c.resolver.Reset()
		c.mu.Unlock()
	})
	c.scheduler = NewScheduler(autoTurnDelay, c.schedulerConditions, c.runAutomatedTurn)
	c.sync.OnUpdate(c.handleUpdate)
	c.sync.OnInvalid(c.handleInvalid)
	return c
}

func (c *Controller) OnChange(fn func(Snapshot))        { c.onChange = fn }
func (c *Controller) OnGone(fn func())                  { c.onGone = fn }
func (c *Controller) OnGameOver(fn func(winner string)) { c.onGameOver = fn }

// Start begins polling. The controller owns the derived context; Close tears
// everything down.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.sync.Run(ctx)
}

// Close stops polling and cancels any armed automated-turn timer.
func (c *Controller) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.scheduler.Stop()
}

func (c *Controller) schedulerConditions() (*engineapi.GameStateView, bool) {
	state, _ := c.sync.Snapshot()
	return state, c.gate.Pending()
}

func (c *Controller) runAutomatedTurn(opponentID string) {
	if err := c.dispatcher.AutoTurn(context.Background(), opponentID); err != nil {
		log.Warn().Err(err).Str("game", c.gameID).Msg("automated turn failed")
	}
	c.scheduler.Observe()
	c.publish()
}

func (c *Controller) handleUpdate() {
	state, _ := c.sync.Snapshot()
	if state != nil && state.Winner != "" {
		c.announceWinner(state)
	}
	c.scheduler.Observe()
	c.publish()
}

// announceWinner raises the terminal game-over notification exactly once,
// however many polls still report the finished game.
func (c *Controller) announceWinner(state *engineapi.GameStateView) {
	c.mu.Lock()
	if c.announced {
		c.mu.Unlock()
		return
	}
	c.announced = true
	c.mu.Unlock()

	name := state.Winner
	if p, ok := state.Players[state.Winner]; ok && p.Name != "" {
		name = p.Name
	}
	log.Info().Str("game", c.gameID).Str("winner", name).Msg("game over")
	if c.onGameOver != nil {
		c.onGameOver(name)
	}
}

// handleInvalid performs the full teardown for an invalidated session. There
// is no partial recovery: the board is discarded and the user starts over.
func (c *Controller) handleInvalid() {
	c.mu.Lock()
	if c.gone {
		c.mu.Unlock()
		return
	}
	c.gone = true
	c.resolver.Reset()
	c.mu.Unlock()

	c.scheduler.Stop()
	if c.cancel != nil {
		c.cancel()
	}
	if c.onGone != nil {
		c.onGone()
	}
}

// SelectAction routes the chosen legal action by index into the current
// action list. Actions needing no secondary input are dispatched
// immediately; the rest open a selection.
func (c *Controller) SelectAction(index int) error {
	_, actions := c.sync.Snapshot()
	if index < 0 || index >= len(actions) {
		return ErrNoSuchAction
	}
	desc := actions[index]

	if !desc.NeedsInput() {
		if c.gate.Pending() {
			return ErrMutationInFlight
		}
		go c.dispatch(desc, Resolution{})
		return nil
	}

	c.mu.Lock()
	c.resolver.Begin(desc, c.paymentPool(desc))
	c.mu.Unlock()
	c.publish()
	return nil
}

// paymentPool lists the viewer's hand cards eligible to be slept as the
// alternative payment: everything in hand except the card being played.
func (c *Controller) paymentPool(desc engineapi.ActionDescriptor) []string {
	if !desc.AltCost {
		return nil
	}
	state, _ := c.sync.Snapshot()
	if state == nil {
		return nil
	}
	viewer, ok := state.Players[c.viewerID]
	if !ok {
		return nil
	}
	pool := make([]string, 0, len(viewer.Hand))
	for _, card := range viewer.Hand {
		if card.ID == desc.CardID {
			continue
		}
		pool = append(pool, card.ID)
	}
	return pool
}

func (c *Controller) ToggleTarget(id string) {
	c.mu.Lock()
	c.resolver.ToggleTarget(id)
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) PayWithEnergy() {
	c.mu.Lock()
	c.resolver.PayWithEnergy()
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) ChoosePaymentCard(id string) {
	c.mu.Lock()
	c.resolver.ChoosePaymentCard(id)
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) CancelSelection() {
	c.mu.Lock()
	c.resolver.Cancel()
	c.mu.Unlock()
	c.publish()
}

// Confirm commits the selection in progress and dispatches it.
func (c *Controller) Confirm() error {
	c.mu.Lock()
	descPtr := c.resolver.Descriptor()
	if descPtr == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	desc := *descPtr
	res, err := c.resolver.Confirm()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.gate.Pending() {
		return ErrMutationInFlight
	}
	go c.dispatch(desc, res)
	return nil
}

func (c *Controller) dispatch(desc engineapi.ActionDescriptor, res Resolution) {
	ctx := context.Background()
	var err error
	switch desc.Kind {
	case engineapi.KindEndTurn:
		err = c.dispatcher.EndTurn(ctx)
	case engineapi.KindPlayCard:
		err = c.dispatcher.PlayCard(ctx, desc, res)
	case engineapi.KindTussle:
		err = c.dispatcher.Tussle(ctx, desc, res)
	default:
		err = fmt.Errorf("unknown action kind %q", desc.Kind)
	}
	if err != nil && !errors.Is(err, ErrMutationInFlight) {
		log.Debug().Err(err).Str("kind", desc.Kind).Str("game", c.gameID).Msg("dispatch failed")
	}
	c.scheduler.Observe()
	c.publish()
}

// Snapshot assembles the full render model for this board.
func (c *Controller) Snapshot() Snapshot {
	state, actions := c.sync.Snapshot()
	snap := Snapshot{
		GameID:   c.gameID,
		ViewerID: c.viewerID,
		Loading:  c.sync.Loading(),
		Stale:    c.sync.Err() != nil,
		Pending:  c.gate.Pending(),
		State:    state,
		Actions:  actions,
		Message:  c.dispatcher.LastMessage(),
	}

	c.mu.Lock()
	snap.Gone = c.gone
	if desc := c.resolver.Descriptor(); desc != nil {
		snap.Selection = &SelectionView{
			State:       c.resolver.State(),
			Action:      *desc,
			Targets:     c.resolver.Selected(),
			PaymentCard: c.resolver.PaymentCard(),
			PayEnergy:   c.resolver.State() == StateCollectingAltCost && c.resolver.PaymentCard() == "",
			Ready:       c.resolver.Ready(),
		}
	}
	c.mu.Unlock()
	return snap
}

func (c *Controller) publish() {
	if c.onChange != nil {
		c.onChange(c.Snapshot())
	}
}

func (c *Controller) GameID() string   { return c.gameID }
func (c *Controller) ViewerID() string { return c.viewerID }
