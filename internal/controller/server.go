// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"docflow/internal/controller/handlers"
	"docflow/internal/controller/middleware"
	"docflow/internal/orchestrator"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server. metricsHandler serves /metrics and
// may be nil when metrics are disabled.
func New(addr string, store handlers.StoreFactory, orch *orchestrator.Orchestrator, metricsHandler http.Handler, log *slog.Logger) *Server {
	h := handlers.New(store, orch)
	authMW := middleware.AuthMiddleware(store)
	rateMW := middleware.RateLimitMiddleware()

	protected := func(hf http.HandlerFunc) http.Handler {
		return authMW(rateMW(hf))
	}

	mux := http.NewServeMux()

	// Admin endpoint; deployments front it with their own access control.
	mux.HandleFunc("POST /organizations", h.CreateOrganization)

	// Public authenticated apis
	mux.Handle("POST /workflows", protected(h.CreateWorkflow))
	mux.Handle("GET /workflows/{id}", protected(h.GetWorkflow))
	mux.Handle("POST /workflows/{id}/execute", protected(h.ExecuteWorkflow))
	mux.Handle("GET /workflows/{id}/history", protected(h.ListFileHistory))
	mux.Handle("DELETE /workflows/{id}/history", protected(h.ClearFileHistory))
	mux.Handle("GET /executions/{id}", protected(h.GetExecution))
	mux.Handle("GET /executions/{id}/files", protected(h.ListExecutionFiles))
	mux.Handle("POST /executions/{id}/stop", protected(h.StopExecution))

	// Probes and metrics
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      middleware.RequestIDMiddleware(middleware.LoggingMiddleware(log)(mux)),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
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
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
