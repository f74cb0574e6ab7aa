package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/naptimegame/board-client/internal/board"
	"github.com/naptimegame/board-client/internal/config"
	"github.com/naptimegame/board-client/internal/engineapi"
	"github.com/naptimegame/board-client/internal/ws"
	staticserver "github.com/naptimegame/board-client/static"
)

const version = "v1.2.0"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Naptime board - web board for the Naptime card game

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT                  Port to listen on (default: 8080)
  ENGINE_URL            Base URL of the game engine (default: http://localhost:9090)
  POLL_INTERVAL_MS      Board poll cadence toward the engine (default: 2000)
  AUTO_TURN_DELAY_MS    Settling delay before a bot turn runs (default: 1000)
  HEALTH_BACKOFF_CAP_MS Backoff ceiling while waiting for a cold engine (default: 10000)
  ENGINE_TIMEOUT_MS     Per-request engine timeout (default: 8000)

Examples:
  %s                  Start the board with default settings
  %s --port 3000      Start the board on port 3000

Visit http://localhost:8080 after starting.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("naptime-board %s\n", version)
		return
	}

	_ = godotenv.Load()
	cfg := config.FromEnv()

	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)

	client := engineapi.New(cfg.EngineURL, cfg.EngineTimeout)

	// A cold-starting engine is normal at boot; retry forever with capped
	// backoff before serving anything.
	zerologlog.Info().Str("engine", cfg.EngineURL).Msg("waiting for engine health")
	if err := client.WaitHealthy(context.Background(), cfg.HealthBackoffCap); err != nil {
		zerologlog.Fatal().Err(err).Msg("engine never became healthy")
	}
	zerologlog.Info().Msg("engine is up")

	manager := board.NewManager(client, cfg.PollInterval, cfg.AutoTurnDelay)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		zerologlog.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	// Healthcheck
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	sock := ws.New(manager)
	io := sock.Mount(r)
	defer io.Close()

	api := r.Group("/api/board/:game")

	api.POST("/open", func(c *gin.Context) {
		var req struct {
			Player string `json:"player"`
		}
		if err := c.BindJSON(&req); err != nil || req.Player == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player required"})
			return
		}
		ctrl := manager.Open(context.Background(), c.Param("game"), req.Player)
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.GET("/state", func(c *gin.Context) {
		ctrl, err := manager.Get(c.Param("game"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "board not open"})
			return
		}
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/action", func(c *gin.Context) {
		ctrl, err := manager.Get(c.Param("game"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "board not open"})
			return
		}
		var req struct {
			Index int `json:"index"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		if err := ctrl.SelectAction(req.Index); err != nil {
			c.JSON(intentStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/target", func(c *gin.Context) {
		ctrl, err := manager.Get(c.Param("game"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "board not open"})
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := c.BindJSON(&req); err != nil || req.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target id required"})
			return
		}
		ctrl.ToggleTarget(req.ID)
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/payment", func(c *gin.Context) {
		ctrl, err := manager.Get(c.Param("game"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "board not open"})
			return
		}
		var req struct {
			Card string `json:"card"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		if req.Card == "" {
			ctrl.PayWithEnergy()
		} else {
			ctrl.ChoosePaymentCard(req.Card)
		}
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/confirm", func(c *gin.Context) {
		ctrl, err := manager.Get(c.Param("game"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "board not open"})
			return
		}
		if err := ctrl.Confirm(); err != nil {
			c.JSON(intentStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/cancel", func(c *gin.Context) {
		ctrl, err := manager.Get(c.Param("game"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "board not open"})
			return
		}
		ctrl.CancelSelection()
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/close", func(c *gin.Context) {
		manager.Close(c.Param("game"))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Serve the board shell for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}

func intentStatus(err error) int {
	switch {
	case errors.Is(err, board.ErrMutationInFlight):
		return http.StatusConflict
	case errors.Is(err, board.ErrNoSuchAction), errors.Is(err, board.ErrNoSelection), errors.Is(err, board.ErrNotReady):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
