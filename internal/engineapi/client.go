package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSessionNotFound is returned when the engine no longer knows the game.
// It is the single session-invalidation signal; callers must tear the board
// down instead of retrying.
var ErrSessionNotFound = errors.New("session not found")

// Action kinds as the engine reports them.
const (
	KindEndTurn  = "end_turn"
	KindPlayCard = "play_card"
	KindTussle   = "tussle"
)

// Card zones.
const (
	ZoneHand   = "hand"
	ZoneInPlay = "in_play"
	ZoneSlept  = "slept"
)

// Card types.
const (
	TypeFighter = "fighter"
	TypeInstant = "instant"
)

// DirectAttack is the sentinel target id the engine lists on a tussle
// descriptor when the defender has no fighters in play.
const DirectAttack = "direct_attack"

// Card is one card as the viewer is allowed to see it. IDs are stable and
// distinct from names; the same name can recur in a deck.
type Card struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Zone        string `json:"zone"`
	Type        string `json:"type"`
	Attack      int    `json:"attack"`
	BaseAttack  int    `json:"baseAttack"`
	Defense     int    `json:"defense"`
	BaseDefense int    `json:"baseDefense"`
	Stamina     int    `json:"stamina"`
	BaseStamina int    `json:"baseStamina"`
	Effect      string `json:"effect,omitempty"`
	Slept       bool   `json:"slept,omitempty"`
}

// PlayerView is one participant's side of the board. The opponent's hand
// arrives count-only.
type PlayerView struct {
	Name      string `json:"name"`
	Energy    int    `json:"energy"`
	Hand      []Card `json:"hand,omitempty"`
	HandCount int    `json:"handCount"`
	InPlay    []Card `json:"inPlay"`
	Slept     []Card `json:"slept"`
	Automated bool   `json:"automated,omitempty"`
}

// GameStateView is the authoritative whole-board snapshot. It is replaced
// wholesale on every successful poll, never patched in place.
type GameStateView struct {
	Turn      int                   `json:"turn"`
	Phase     string                `json:"phase"`
	WhoseTurn string                `json:"whoseTurn"`
	Players   map[string]PlayerView `json:"players"`
	Winner    string                `json:"winner,omitempty"`
	Log       []string              `json:"log,omitempty"`
}

// ActionDescriptor describes one action the engine currently considers legal
// for the viewer. Min/MaxTargets default to 1 when absent; 0 means targeting
// is optional.
type ActionDescriptor struct {
	Kind       string   `json:"kind"`
	CardID     string   `json:"cardId,omitempty"`
	CardName   string   `json:"cardName,omitempty"`
	MinTargets *int     `json:"minTargets,omitempty"`
	MaxTargets *int     `json:"maxTargets,omitempty"`
	Targets    []string `json:"targets,omitempty"`
	AltCost    bool     `json:"altCost,omitempty"`
	Cost       int      `json:"cost,omitempty"`
}

func (d ActionDescriptor) Min() int {
	if d.MinTargets == nil {
		return 1
	}
	return *d.MinTargets
}

func (d ActionDescriptor) Max() int {
	if d.MaxTargets == nil {
		return 1
	}
	return *d.MaxTargets
}

// NeedsInput reports whether the descriptor requires secondary input (targets
// or a cost choice) before it can be submitted.
func (d ActionDescriptor) NeedsInput() bool {
	if d.Kind == KindEndTurn {
		return false
	}
	return d.Min() != 0 || d.Max() != 0 || d.AltCost
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9090"
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("engine status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// postJSON submits a mutation and returns the engine's human-readable outcome
// message. Rejections come back as plain errors carrying the engine's text.
func (c *Client) postJSON(ctx context.Context, path string, payload any) (string, error) {
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode/100 != 2 {
		if decodeErr == nil && out.Error != "" {
			return "", errors.New(out.Error)
		}
		return "", fmt.Errorf("engine status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", decodeErr
	}
	return out.Message, nil
}

// FetchState retrieves the current whole-board snapshot for the viewer.
func (c *Client) FetchState(ctx context.Context, gameID, viewerID string) (*GameStateView, error) {
	var state GameStateView
	path := "/api/games/" + url.PathEscape(gameID) + "/state?player=" + url.QueryEscape(viewerID)
	if err := c.getJSON(ctx, path, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// FetchActions retrieves the actions the engine currently considers legal for
// the viewer. Only meaningful while it is the viewer's turn.
func (c *Client) FetchActions(ctx context.Context, gameID, viewerID string) ([]ActionDescriptor, error) {
	var actions []ActionDescriptor
	path := "/api/games/" + url.PathEscape(gameID) + "/actions?player=" + url.QueryEscape(viewerID)
	if err := c.getJSON(ctx, path, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// PlayCard submits a play-card mutation. sleepCard carries the alternative
// payment card id; empty means the energy cost is paid normally.
func (c *Client) PlayCard(ctx context.Context, gameID, viewerID, cardID string, targets []string, sleepCard string) (string, error) {
	payload := map[string]any{
		"player": viewerID,
		"card":   cardID,
	}
	if len(targets) > 0 {
		payload["targets"] = targets
	}
	if sleepCard != "" {
		payload["sleepCard"] = sleepCard
	}
	return c.postJSON(ctx, "/api/games/"+url.PathEscape(gameID)+"/play", payload)
}

// Tussle submits a combat mutation. An empty defenderID denotes a direct
// attack on the opponent's hand.
func (c *Client) Tussle(ctx context.Context, gameID, viewerID, attackerID, defenderID string) (string, error) {
	payload := map[string]any{
		"player":   viewerID,
		"attacker": attackerID,
	}
	if defenderID != "" {
		payload["defender"] = defenderID
	}
	return c.postJSON(ctx, "/api/games/"+url.PathEscape(gameID)+"/tussle", payload)
}

func (c *Client) EndTurn(ctx context.Context, gameID, viewerID string) (string, error) {
	return c.postJSON(ctx, "/api/games/"+url.PathEscape(gameID)+"/end-turn", map[string]any{"player": viewerID})
}

// RunAutomatedTurn asks the engine to take a full turn on behalf of the
// automated opponent. Dispatched only by the turn scheduler.
func (c *Client) RunAutomatedTurn(ctx context.Context, gameID, opponentID string) (string, error) {
	return c.postJSON(ctx, "/api/games/"+url.PathEscape(gameID)+"/auto-turn", map[string]any{"player": opponentID})
}

func (c *Client) Health(ctx context.Context) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("engine status %d", resp.StatusCode)
	}
	return nil
}

// WaitHealthy blocks until the engine answers its health check, retrying
// forever with exponential backoff capped at backoffCap. A cold-starting
// backend is expected at session entry, so there is no attempt limit; the
// context is the only way out.
func (c *Client) WaitHealthy(ctx context.Context, backoffCap time.Duration) error {
	backoff := 500 * time.Millisecond
	if backoffCap <= 0 {
		backoffCap = 10 * time.Second
	}
	for {
		if err := c.Health(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}
