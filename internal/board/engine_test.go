package board

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/naptimegame/board-client/internal/engineapi"
)

// fakeEngine is an in-process stand-in for the rules engine. Tests mutate its
// fields between polls to steer the board, and inspect the recorded requests
// afterwards.
type fakeEngine struct {
	mu sync.Mutex

	state   engineapi.GameStateView
	actions []engineapi.ActionDescriptor

	gone      bool   // answer 404 on every game route
	stateFail bool   // answer 500 on the state fetch
	reject    string // non-empty: reject mutations with this message

	statePolls  int
	actionPolls int
	plays       []map[string]any
	tussles     []map[string]any
	endTurns    int
	autoTurns   []string

	// When non-nil, mutation handlers block on it until the test closes it.
	hold chan struct{}

	srv *httptest.Server
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	e := &fakeEngine{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/games/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.statePolls++
		gone, fail, state := e.gone, e.stateFail, e.state
		e.mu.Unlock()
		switch {
		case gone:
			http.NotFound(w, r)
		case fail:
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			json.NewEncoder(w).Encode(state)
		}
	})
	mux.HandleFunc("GET /api/games/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.actionPolls++
		gone, actions := e.gone, e.actions
		e.mu.Unlock()
		if gone {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(actions)
	})
	mutation := func(record func(body map[string]any)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			e.mu.Lock()
			gone, reject, hold := e.gone, e.reject, e.hold
			e.mu.Unlock()
			if gone {
				http.NotFound(w, r)
				return
			}
			if hold != nil {
				<-hold
			}
			e.mu.Lock()
			record(body)
			e.mu.Unlock()
			if reject != "" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": reject})
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
		}
	}
	mux.HandleFunc("POST /api/games/{id}/play", mutation(func(b map[string]any) { e.plays = append(e.plays, b) }))
	mux.HandleFunc("POST /api/games/{id}/tussle", mutation(func(b map[string]any) { e.tussles = append(e.tussles, b) }))
	mux.HandleFunc("POST /api/games/{id}/end-turn", mutation(func(b map[string]any) { e.endTurns++ }))
	mux.HandleFunc("POST /api/games/{id}/auto-turn", mutation(func(b map[string]any) {
		player, _ := b["player"].(string)
		e.autoTurns = append(e.autoTurns, player)
	}))
	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *fakeEngine) client() *engineapi.Client {
	return engineapi.New(e.srv.URL, 0)
}

func (e *fakeEngine) setState(state engineapi.GameStateView) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

func (e *fakeEngine) setActions(actions []engineapi.ActionDescriptor) {
	e.mu.Lock()
	e.actions = actions
	e.mu.Unlock()
}

func (e *fakeEngine) setGone(gone bool) {
	e.mu.Lock()
	e.gone = gone
	e.mu.Unlock()
}

func (e *fakeEngine) setStateFail(fail bool) {
	e.mu.Lock()
	e.stateFail = fail
	e.mu.Unlock()
}

func (e *fakeEngine) setReject(msg string) {
	e.mu.Lock()
	e.reject = msg
	e.mu.Unlock()
}

func (e *fakeEngine) holdMutations() chan struct{} {
	ch := make(chan struct{})
	e.mu.Lock()
	e.hold = ch
	e.mu.Unlock()
	return ch
}

func (e *fakeEngine) counts() (statePolls, actionPolls, plays, tussles, endTurns, autoTurns int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statePolls, e.actionPolls, len(e.plays), len(e.tussles), e.endTurns, len(e.autoTurns)
}

// viewerTurnState builds a snapshot where it is the viewer's turn against a
// human opponent.
func viewerTurnState(viewer string, turn int) engineapi.GameStateView {
	return engineapi.GameStateView{
		Turn:      turn,
		Phase:     "main",
		WhoseTurn: viewer,
		Players: map[string]engineapi.PlayerView{
			viewer: {
				Name:   viewer,
				Energy: 5,
				Hand: []engineapi.Card{
					{ID: "hand-1", Name: "Yawning Fox", Zone: engineapi.ZoneHand, Type: engineapi.TypeFighter},
					{ID: "hand-2", Name: "Pillow Fort", Zone: engineapi.ZoneHand, Type: engineapi.TypeInstant},
				},
				HandCount: 2,
			},
			"rival": {Name: "rival", Energy: 5, HandCount: 4},
		},
	}
}
