package server

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rendis/harvest/internal/bus"
	"github.com/rendis/harvest/internal/coordinator"
	"github.com/rendis/harvest/internal/ledger"
	"github.com/rendis/harvest/internal/status"
	"github.com/rendis/harvest/internal/store"
)

// KeepAliveInterval is how long the stream waits for an event before
// emitting a keep-alive comment. It also bounds how quickly a closed
// client connection is detected.
const KeepAliveInterval = time.Second

// Deps holds the dependencies for the API server. Store and Portfolio are
// optional; their routes return 404/503 when absent.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Bus         *bus.Bus
	Snapshot    *status.Snapshot
	Store       store.Store
	Portfolio   ledger.Summarizer
	Logger      *slog.Logger
}

// Server exposes the control surface: status, start/stop, the live event
// stream and the portfolio summary.
type Server struct {
	deps Deps
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /agent/status", s.handleStatus)
	mux.HandleFunc("POST /agent/start", s.handleStart)
	mux.HandleFunc("POST /agent/stop", s.handleStop)
	mux.HandleFunc("GET /agent/stream", s.handleStream)

	mux.HandleFunc("GET /portfolio", s.handlePortfolio)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}
