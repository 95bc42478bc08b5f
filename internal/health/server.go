// Package health serves read-only liveness and status endpoints.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/annahadji/beepi/internal/session"
)

// StatusSource reports the current session status.
type StatusSource interface {
	Status() session.Status
}

// Server exposes /health (liveness) and /status (session snapshot).
type Server struct {
	source StatusSource
	log    *slog.Logger
}

// NewServer creates a health server over the given status source.
func NewServer(source StatusSource, log *slog.Logger) *Server {
	return &Server{source: source, log: log}
}

// LivenessHandler handles /health. If this code runs, the process is alive.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// StatusHandler handles /status with the controller's current snapshot.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.source.Status())
}

// Start serves the endpoints on the given port without blocking.
func (s *Server) Start(port string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/status", s.StatusHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting health server", "port", port, "endpoints", []string{"/health", "/status"})

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("health server failed", "error", err)
		}
	}()
}
