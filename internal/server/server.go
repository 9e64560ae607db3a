// Package server exposes the engine over HTTP: a beacon endpoint for
// participation and conversion events, a server-side assignment
// endpoint, and a read-only scoring API. All decision logic stays in
// the experiment and stats packages; handlers only translate.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/store"
)

type Server struct {
	definitions store.Definitions
	counters    experiment.Store
	engine      *experiment.Engine
	port        int
	router      *http.ServeMux
	log         *slog.Logger
	startTime   time.Time
}

func New(definitions store.Definitions, counters experiment.Store, engine *experiment.Engine, port int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	srv := &Server{
		definitions: definitions,
		counters:    counters,
		engine:      engine,
		port:        port,
		router:      http.NewServeMux(),
		log:         log,
		startTime:   time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/b", s.handleBeacon)
	s.router.HandleFunc("/assign", s.handleAssign)
	s.router.HandleFunc("/api/experiments", s.handleExperiments)
	s.router.HandleFunc("/api/experiments/", s.handleScore)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("vanity server listening", "addr", addr, "collecting", s.engine.Collecting())
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}
