package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Server wraps the HTTP listener around the API handlers.
type Server struct {
	server *http.Server
}

// NewServer creates the API server on the given port.
func NewServer(port int, h *Handlers) *Server {
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      SetupRoutes(h),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving HTTP until Shutdown or a listener failure.
func (s *Server) Start() error {
	log.Printf("[API] listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
