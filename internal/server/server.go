// Package server implements the Autometric HTTP API server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/autometric/autometric/internal/analyzer"
	"github.com/autometric/autometric/internal/ingest"
	"github.com/autometric/autometric/internal/pr"
	"github.com/autometric/autometric/internal/schema"
	"github.com/autometric/autometric/internal/store"
	"github.com/autometric/autometric/internal/webhook"
)

const defaultMaxRequestBody = 1 << 20 // 1 MiB

// Deps carries the collaborators the server routes requests to. Worker is
// optional; without it the manual analyze trigger returns 503.
type Deps struct {
	Store         store.Store
	Webhooks      *webhook.Router
	WebhookSecret string
	Resolver      *schema.Resolver
	Validator     *ingest.Validator
	Integrator    *pr.Integrator
	Worker        *analyzer.Worker
	Logger        *slog.Logger
}

// Server is the Autometric HTTP API server.
type Server struct {
	deps   Deps
	router chi.Router
	addr   string
	apiKey string
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server.
func New(addr, apiKey string, maxRequestBody int64, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if maxRequestBody <= 0 {
		maxRequestBody = defaultMaxRequestBody
	}

	s := &Server{
		deps:   deps,
		addr:   addr,
		apiKey: apiKey,
		logger: deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(MaxBodyMiddleware(maxRequestBody))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("autometric server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
