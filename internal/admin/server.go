package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"batchplane/internal/admin/middleware"
)

// ServerConfig holds admin HTTP settings.
type ServerConfig struct {
	Addr           string
	RateLimit      float64
	RateLimitBurst int
}

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
}

// NewServer wires the handlers, middleware and the metrics endpoint.
func NewServer(cfg ServerConfig, h *Handlers, metricsHandler http.Handler, log *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", h.Overview)
	mux.HandleFunc("POST /manual/run", h.ManualRun)
	mux.HandleFunc("POST /schedules", h.CreateSchedule)
	mux.HandleFunc("POST /tasks/enqueue", h.EnqueueTask)
	mux.HandleFunc("POST /schedule/{id}/toggle", h.ToggleSchedule)
	mux.HandleFunc("POST /schedule/{id}/delete", h.DeleteSchedule)
	mux.HandleFunc("POST /tasks/{id}/cancel", h.CancelTask)
	mux.HandleFunc("POST /tasks/{id}/delete", h.DeleteTask)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	var handler http.Handler = mux
	handler = middleware.RateLimit(cfg.RateLimit, cfg.RateLimitBurst)(handler)
	handler = middleware.RequestID(log)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
