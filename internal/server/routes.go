package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"

	"github.com/autometric/autometric/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(handlers.Deps{
		Store:         s.deps.Store,
		Webhooks:      s.deps.Webhooks,
		WebhookSecret: s.deps.WebhookSecret,
		Resolver:      s.deps.Resolver,
		Validator:     s.deps.Validator,
		Integrator:    s.deps.Integrator,
		Worker:        s.deps.Worker,
		Logger:        s.logger,
	})

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Inbound traffic, authenticated by signature / app key
		r.Post("/webhooks/github", h.GitHubWebhook)
		r.Post("/ingest", h.Ingest)

		// Operator endpoints
		r.Group(func(r chi.Router) {
			r.Use(APIKeyMiddleware(s.apiKey))

			r.Route("/repos/{owner}/{repo}", func(r chi.Router) {
				r.Get("/schema", h.GetSchema)
				r.Post("/schema", h.OverrideSchema)
				r.Get("/routegraph", h.GetRouteGraph)
				r.Post("/routegraph", h.OverrideRouteGraph)
				r.Post("/approve", h.Approve)
				r.Get("/runs", h.ListRuns)
				r.Get("/events", h.ListEvents)
			})

			r.Get("/runs/{runID}", h.GetRun)
			r.Post("/analyze", h.Analyze)
		})
	})

	r.Method("GET", "/debug/vars", expvar.Handler())
}
