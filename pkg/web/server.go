// Package web serves the trivia dashboard: leaderboard API, session
// status, and a live waveform feed from the visualization tap.
package web

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/trivialabs/go-trivialive/internal/log"
	"github.com/trivialabs/go-trivialive/pkg/audio"
	"github.com/trivialabs/go-trivialive/pkg/hub"
	"github.com/trivialabs/go-trivialive/pkg/leaderboard"
)

// vizRefresh is the waveform broadcast cadence.
const vizRefresh = 50 * time.Millisecond

// SessionStatus is what the dashboard shows about the live session.
type SessionStatus struct {
	Active          bool   `json:"active"`
	State           string `json:"state"`
	Muted           bool   `json:"muted"`
	Topic           string `json:"topic"`
	FramesSent      int64  `json:"frames_sent"`
	ChunksScheduled int64  `json:"chunks_scheduled"`
	LiveBuffers     int    `json:"live_buffers"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	store *leaderboard.Store
	tap   *audio.Tap

	vizHub *hub.Hub
	stop   chan struct{}

	// Status reports the current session state. Optional; when nil the
	// dashboard shows an inactive session.
	Status func() SessionStatus
}

// NewServer creates a dashboard server over the given leaderboard store
// and visualization tap. Either may be nil; the matching surface is
// simply absent.
func NewServer(port string, store *leaderboard.Store, tap *audio.Tap) *Server {
	s := &Server{
		port:   port,
		logger: log.Component("web"),
		store:  store,
		tap:    tap,
		vizHub: hub.New("viz"),
		stop:   make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "TriviaLive Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/leaderboard", s.handleGetLeaderboard)
	api.Post("/leaderboard", s.handlePostResult)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/viz", websocket.New(s.handleVizWS))

	s.app = app
	return s
}

// Start runs the server. Blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "port", s.port)

	go s.vizHub.Run()
	go s.vizLoop()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server stopped", "error", err)
		}
	}()
}

// vizLoop samples the tap on a fixed cadence and broadcasts waveform
// frames to connected viewers. Purely a reader: it never touches the
// audio path.
func (s *Server) vizLoop() {
	if s.tap == nil {
		return
	}

	ticker := time.NewTicker(vizRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.vizHub.ClientCount() == 0 {
				continue
			}
			s.vizHub.BroadcastJSON(vizFrame{
				Input:  downsample(s.tap.InputWindow(), vizPoints),
				Output: downsample(s.tap.OutputWindow(), vizPoints),
			})
		}
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	close(s.stop)
	return s.app.Shutdown()
}
