package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"

	"github.com/naptimegame/board-client/internal/board"
)

// ConnCtx remembers which session a socket is watching.
type ConnCtx struct {
	GameID   string
	ViewerID string
}

// Server fans board snapshots out to subscribed browsers. One socket.io room
// per game session; every snapshot is a whole-state replace, mirroring the
// poll contract toward the engine.
type Server struct {
	manager *board.Manager
}

func New(manager *board.Manager) *Server {
	return &Server{manager: manager}
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine
// and wires the manager's fan-out hooks.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	srv.manager.OnChange(func(gameID string, snap board.Snapshot) {
		io.BroadcastToRoom("/", gameID, "board:state", snap)
	})
	srv.manager.OnGone(func(gameID string) {
		io.BroadcastToRoom("/", gameID, "board:gone", map[string]any{"gameId": gameID})
	})
	srv.manager.OnGameOver(func(gameID, winner string) {
		io.BroadcastToRoom("/", gameID, "board:over", map[string]any{"gameId": gameID, "winner": winner})
	})

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// board:subscribe — join the session room and receive the current
	// snapshot immediately.
	io.OnEvent("/", "board:subscribe", func(s socketio.Conn, payload struct {
		GameID string `json:"gameId"`
	}) map[string]any {
		c, err := srv.manager.Get(payload.GameID)
		if err != nil {
			return srv.err(s, "board_not_found", "Board not open")
		}
		s.SetContext(&ConnCtx{GameID: payload.GameID, ViewerID: c.ViewerID()})
		s.Join(payload.GameID)
		log.Info().Str("sid", s.ID()).Str("game", payload.GameID).Msg("board:subscribe")
		s.Emit("board:state", c.Snapshot())
		return map[string]any{"ok": true}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go io.Serve()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func (srv *Server) err(s socketio.Conn, code, message string) map[string]any {
	s.Emit("error", map[string]any{"code": code, "message": message})
	return map[string]any{"error": message}
}
