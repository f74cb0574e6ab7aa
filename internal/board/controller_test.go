package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/naptimegame/board-client/internal/engineapi"
)

func startController(t *testing.T, e *fakeEngine) (*Controller, chan Snapshot) {
	t.Helper()
	c := NewController(e.client(), "game-1", "alice", 15*time.Millisecond, 20*time.Millisecond)
	changes := make(chan Snapshot, 256)
	c.OnChange(func(s Snapshot) { changes <- s })
	c.Start(context.Background())
	t.Cleanup(c.Close)
	return c, changes
}

func awaitSnapshot(t *testing.T, changes chan Snapshot, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-changes:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("expected snapshot never arrived")
		}
	}
}

func TestControllerEndTurnDispatchesImmediately(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 1))
	e.setActions([]engineapi.ActionDescriptor{{Kind: engineapi.KindEndTurn}})

	c, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return len(s.Actions) == 1 })

	if err := c.SelectAction(0); err != nil {
		t.Fatalf("end turn needs no input and should dispatch: %v", err)
	}
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.Message == "ok" })
	if _, _, _, _, endTurns, _ := e.counts(); endTurns != 1 {
		t.Fatalf("expected one end-turn request, got %d", endTurns)
	}
	if snap := c.Snapshot(); snap.Selection != nil {
		t.Fatal("no selection should open for an input-free action")
	}
}

func TestControllerSelectActionOutOfRange(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 1))
	e.setActions([]engineapi.ActionDescriptor{{Kind: engineapi.KindEndTurn}})

	c, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return len(s.Actions) == 1 })

	if err := c.SelectAction(5); !errors.Is(err, ErrNoSuchAction) {
		t.Fatalf("expected ErrNoSuchAction, got %v", err)
	}
	if err := c.SelectAction(-1); !errors.Is(err, ErrNoSuchAction) {
		t.Fatalf("expected ErrNoSuchAction, got %v", err)
	}
}

func TestControllerTargetedPlayRoundTrip(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 2))
	e.setActions([]engineapi.ActionDescriptor{{
		Kind:       engineapi.KindPlayCard,
		CardID:     "hand-1",
		MinTargets: intPtr(1),
		MaxTargets: intPtr(1),
		Targets:    []string{"rival-1", "rival-2"},
	}})

	c, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return len(s.Actions) == 1 })

	if err := c.SelectAction(0); err != nil {
		t.Fatalf("select should open a selection: %v", err)
	}
	snap := awaitSnapshot(t, changes, func(s Snapshot) bool { return s.Selection != nil })
	if snap.Selection.State != StateCollectingTargets || snap.Selection.Ready {
		t.Fatalf("fresh selection should be collecting and not ready: %+v", snap.Selection)
	}

	c.ToggleTarget("rival-2")
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.Selection != nil && s.Selection.Ready })

	if err := c.Confirm(); err != nil {
		t.Fatalf("confirm should dispatch: %v", err)
	}
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.Message == "ok" && s.Selection == nil })

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.plays) != 1 {
		t.Fatalf("expected one play request, got %d", len(e.plays))
	}
	targets, _ := e.plays[0]["targets"].([]any)
	if len(targets) != 1 || targets[0] != "rival-2" {
		t.Fatalf("unexpected targets: %v", e.plays[0]["targets"])
	}
}

func TestControllerDirectAttackTussle(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 3))
	e.setActions([]engineapi.ActionDescriptor{{
		Kind:       engineapi.KindTussle,
		CardID:     "fighter-1",
		MinTargets: intPtr(1),
		MaxTargets: intPtr(1),
		Targets:    []string{engineapi.DirectAttack},
	}})

	c, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return len(s.Actions) == 1 })

	if err := c.SelectAction(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	c.ToggleTarget(engineapi.DirectAttack)
	if err := c.Confirm(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.Message == "ok" })

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.tussles) != 1 {
		t.Fatalf("expected one tussle request, got %d", len(e.tussles))
	}
	body := e.tussles[0]
	if body["attacker"] != "fighter-1" {
		t.Fatalf("unexpected attacker: %v", body)
	}
	if _, present := body["defender"]; present {
		t.Fatalf("direct attack must omit the defender: %v", body)
	}
}

func TestControllerAltCostPaymentPoolExcludesSubject(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 2))
	e.setActions([]engineapi.ActionDescriptor{{
		Kind:       engineapi.KindPlayCard,
		CardID:     "hand-1",
		MinTargets: intPtr(0),
		MaxTargets: intPtr(0),
		AltCost:    true,
	}})

	c, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return len(s.Actions) == 1 })

	if err := c.SelectAction(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	// hand-1 is the card being played, so only hand-2 is sleepable.
	c.ChoosePaymentCard("hand-1")
	snap := c.Snapshot()
	if snap.Selection == nil || snap.Selection.PaymentCard != "" {
		t.Fatalf("the subject card must not be a payment option: %+v", snap.Selection)
	}

	c.ChoosePaymentCard("hand-2")
	if err := c.Confirm(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.Message == "ok" })

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.plays[0]["sleepCard"] != "hand-2" {
		t.Fatalf("expected sleepCard hand-2, got %v", e.plays[0])
	}
}

func TestControllerConfirmWithoutSelection(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 1))

	c, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.State != nil })

	if err := c.Confirm(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
}

func TestControllerRejectsSecondMutationInFlight(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 1))
	e.setActions([]engineapi.ActionDescriptor{{Kind: engineapi.KindEndTurn}})
	hold := e.holdMutations()

	c, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return len(s.Actions) == 1 })

	if err := c.SelectAction(0); err != nil {
		t.Fatalf("first select: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !c.Snapshot().Pending {
		if time.Now().After(deadline) {
			t.Fatal("first mutation never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.SelectAction(0); !errors.Is(err, ErrMutationInFlight) {
		t.Fatalf("expected ErrMutationInFlight, got %v", err)
	}
	close(hold)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.Message == "ok" })
	if _, _, _, _, endTurns, _ := e.counts(); endTurns != 1 {
		t.Fatalf("the rejected attempt must not reach the engine, got %d", endTurns)
	}
}

func TestControllerAnnouncesWinnerOnce(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 6))

	c, changes := startController(t, e)
	winners := make(chan string, 4)
	c.OnGameOver(func(w string) { winners <- w })

	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.State != nil })

	finished := viewerTurnState("alice", 6)
	finished.Winner = "alice"
	e.setState(finished)

	select {
	case w := <-winners:
		if w != "alice" {
			t.Fatalf("expected winner alice, got %q", w)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("game over never announced")
	}

	// Polling continues and keeps seeing the finished game; the announcement
	// must not repeat.
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.State != nil && s.State.Winner == "alice" })
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.State != nil && s.State.Winner == "alice" })
	select {
	case <-winners:
		t.Fatal("winner announced more than once")
	default:
	}
}

func TestControllerSessionGoneTearsDown(t *testing.T) {
	e := newFakeEngine(t)
	e.setState(viewerTurnState("alice", 2))
	e.setActions([]engineapi.ActionDescriptor{{
		Kind:       engineapi.KindPlayCard,
		CardID:     "hand-1",
		MinTargets: intPtr(1),
		MaxTargets: intPtr(1),
		Targets:    []string{"rival-1"},
	}})

	c, changes := startController(t, e)
	gone := make(chan struct{}, 4)
	c.OnGone(func() { gone <- struct{}{} })

	awaitSnapshot(t, changes, func(s Snapshot) bool { return len(s.Actions) == 1 })
	if err := c.SelectAction(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	c.ToggleTarget("rival-1")

	e.setGone(true)
	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown callback never fired")
	}

	snap := c.Snapshot()
	if !snap.Gone {
		t.Fatal("snapshot should report the session gone")
	}
	if snap.Selection != nil {
		t.Fatal("teardown must discard the in-progress selection")
	}

	select {
	case <-gone:
		t.Fatal("teardown must run exactly once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestControllerRunsAutomatedOpponentTurn(t *testing.T) {
	e := newFakeEngine(t)
	state := viewerTurnState("alice", 4)
	state.WhoseTurn = "bot"
	state.Players["bot"] = engineapi.PlayerView{Name: "bot", Automated: true}
	e.setState(state)

	_, changes := startController(t, e)
	awaitSnapshot(t, changes, func(s Snapshot) bool { return s.State != nil })

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, _, _, _, autoTurns := e.counts(); autoTurns == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("automated turn never submitted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.mu.Lock()
	opponent := e.autoTurns[0]
	e.mu.Unlock()
	if opponent != "bot" {
		t.Fatalf("expected auto turn for bot, got %q", opponent)
	}

	// The same (turn, opponent) pair must not be submitted again while the
	// engine still reports the bot's turn.
	time.Sleep(100 * time.Millisecond)
	if _, _, _, _, _, autoTurns := e.counts(); autoTurns != 1 {
		t.Fatalf("expected a single automated turn, got %d", autoTurns)
	}
}
