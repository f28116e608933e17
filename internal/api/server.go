// Package api is the control surface: a JSON action-dispatch endpoint for
// the dashboard, health endpoints, and a WebSocket stream of engine log
// lines.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"polymarket-quoter/internal/config"
	"polymarket-quoter/internal/engine"
	"polymarket-quoter/internal/store"
)

// Server runs the HTTP/WebSocket control API.
type Server struct {
	handlers *Handlers
	hub      *Hub
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires the control API. The venue client may be nil in paper
// mode; actions that need it return an error. The hub is registered as the
// engine's log sink so every cycle line reaches connected dashboards.
func NewServer(cfg config.DashboardConfig, eng *engine.Engine, venue VenueControl, st *store.Store, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(eng, venue, st, logger)

	eng.SetLogSink(hub.BroadcastLine)

	mux := http.NewServeMux()
	mux.HandleFunc("/api", handlers.HandleAction)
	mux.HandleFunc("/health", handlers.HandleHealthCheck)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r)
	})
	mux.HandleFunc("/", handlers.HandleRoot)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withCORS(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // run_cycle is synchronous
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		handlers: handlers,
		hub:      hub,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the hub and the HTTP listener. Blocks until Stop.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("control api listening", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping control api")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// withCORS allows any origin. The dashboard is served from wherever the
// operator hosts it.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
