package board

import (
	"errors"

	"github.com/naptimegame/board-client/internal/engineapi"
)

var ErrNotReady = errors.New("selection not ready to confirm")

// ResolverState tags which selection mode is active. Ready is derived, not a
// tag: Ready() reports whether the current selection satisfies the
// descriptor and can be confirmed.
type ResolverState string

const (
	StateIdle              ResolverState = "idle"
	StateCollectingTargets ResolverState = "collecting_targets"
	StateCollectingAltCost ResolverState = "collecting_alt_cost"
)

// Resolution is what Confirm emits: either a normal-target selection
// (AltCost nil) or an alternative-cost choice with empty targets, where a nil
// AltCost in alt mode means the plain energy payment was chosen. Callers tell
// the two nil cases apart by which mode produced the resolution; the
// dispatcher only needs AltCost for the sleepCard field.
type Resolution struct {
	Targets []string
	AltCost *string
}

// TargetResolver collects secondary input (targets or an alternative-cost
// choice) for one action descriptor before it can be submitted. Normal
// targeting and alternative-payment mode are mutually exclusive; entering one
// clears the other. The resolver is not safe for concurrent use; the owning
// controller serializes access.
type TargetResolver struct {
	desc        *engineapi.ActionDescriptor
	paymentPool map[string]bool
	targets     []string
	altMode     bool
	paymentCard string
}

func NewTargetResolver() *TargetResolver {
	return &TargetResolver{}
}

// Begin starts a fresh selection for desc. Any prior selection is discarded,
// which also covers the subject-change rule: picking a different card or
// tussle target goes through Begin again. paymentPool lists the hand cards
// eligible as alternative payment; when the descriptor offers an alternative
// cost but the pool is empty, the only choice left is the energy payment, so
// alt mode starts pre-selected.
func (r *TargetResolver) Begin(desc engineapi.ActionDescriptor, paymentPool []string) {
	r.Reset()
	d := desc
	r.desc = &d
	r.paymentPool = make(map[string]bool, len(paymentPool))
	for _, id := range paymentPool {
		r.paymentPool[id] = true
	}
	if d.AltCost && len(paymentPool) == 0 {
		r.altMode = true
	}
}

// Reset returns the resolver to Idle, discarding the selection. No server
// side effects.
func (r *TargetResolver) Reset() {
	r.desc = nil
	r.paymentPool = nil
	r.targets = nil
	r.altMode = false
	r.paymentCard = ""
}

// Cancel is Reset under the name the board surface uses.
func (r *TargetResolver) Cancel() { r.Reset() }

func (r *TargetResolver) State() ResolverState {
	switch {
	case r.desc == nil:
		return StateIdle
	case r.altMode:
		return StateCollectingAltCost
	default:
		return StateCollectingTargets
	}
}

// Descriptor returns the action being resolved, or nil when Idle.
func (r *TargetResolver) Descriptor() *engineapi.ActionDescriptor {
	return r.desc
}

// ToggleTarget flips membership of a legal target id in the selection.
// Choosing any target leaves alternative-cost mode. Adding beyond the
// descriptor's maximum is a silent no-op; unknown ids are ignored.
func (r *TargetResolver) ToggleTarget(id string) {
	if r.desc == nil || !r.legalTarget(id) {
		return
	}
	if r.altMode {
		r.altMode = false
		r.paymentCard = ""
		r.targets = nil
	}
	for i, t := range r.targets {
		if t == id {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			return
		}
	}
	if len(r.targets) >= r.desc.Max() {
		return
	}
	r.targets = append(r.targets, id)
}

// PayWithEnergy enters alternative-cost mode with the plain currency payment
// chosen, clearing any normal-target selection.
func (r *TargetResolver) PayWithEnergy() {
	if r.desc == nil || !r.desc.AltCost {
		return
	}
	r.altMode = true
	r.paymentCard = ""
	r.targets = nil
}

// ChoosePaymentCard enters alternative-cost mode with a specific payment card
// chosen. Ids outside the eligible pool are ignored.
func (r *TargetResolver) ChoosePaymentCard(id string) {
	if r.desc == nil || !r.desc.AltCost || !r.paymentPool[id] {
		return
	}
	r.altMode = true
	r.paymentCard = id
	r.targets = nil
}

// Ready reports whether the selection satisfies the descriptor. Alt mode is
// always confirmable (the currency choice is a complete answer); normal mode
// needs the selection size within [min, max], where min 0 is satisfied by an
// empty selection.
func (r *TargetResolver) Ready() bool {
	if r.desc == nil {
		return false
	}
	if r.altMode {
		return true
	}
	n := len(r.targets)
	return n >= r.desc.Min() && n <= r.desc.Max()
}

// Confirm emits the resolution. Only callable when Ready; the selection
// survives Confirm so a rejected mutation can be retried, and is cleared by
// the dispatcher on success.
func (r *TargetResolver) Confirm() (Resolution, error) {
	if !r.Ready() {
		return Resolution{}, ErrNotReady
	}
	if r.altMode {
		res := Resolution{Targets: []string{}}
		if r.paymentCard != "" {
			card := r.paymentCard
			res.AltCost = &card
		}
		return res, nil
	}
	// The direct-attack sentinel is a selectable target but resolves to no
	// target ids; its meaning is carried by the omitted defender.
	out := make([]string, 0, len(r.targets))
	for _, t := range r.targets {
		if t == engineapi.DirectAttack {
			continue
		}
		out = append(out, t)
	}
	return Resolution{Targets: out}, nil
}

// Selected returns the chosen target ids in pick order.
func (r *TargetResolver) Selected() []string {
	out := make([]string, len(r.targets))
	copy(out, r.targets)
	return out
}

func (r *TargetResolver) PaymentCard() string { return r.paymentCard }

func (r *TargetResolver) legalTarget(id string) bool {
	for _, t := range r.desc.Targets {
		if t == id {
			return true
		}
	}
	return false
}
