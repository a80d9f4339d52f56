/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the venue frontend

ROUTE GROUPS:
  /api/passes/*    Pass registry, balances, history, tokens, top-ups
  /api/tokens/*    Token resolution (operator scan)
  /api/products/*  Catalog management
  /api/users/*     Directory views and role management
  /api/stats/*     Reporting
  /metrics         Prometheus scrape endpoint
  /healthz         Liveness probe

SECURITY NOTE:
  Authentication happens in the identity collaborator upstream; requests
  arrive with X-Actor-Id already verified. The engine itself does not
  terminate sessions.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Pass routes
		r.Route("/passes", func(r chi.Router) {
			r.Post("/", h.CreatePass)
			r.Get("/{id}", h.GetPass)
			r.Delete("/{id}", h.DeactivatePass)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/events", h.GetEvents)
			r.Post("/{id}/tokens", h.IssueToken)
			r.Post("/{id}/topups", h.TopUp)
		})

		// Token routes (operator scan surface)
		r.Route("/tokens", func(r chi.Router) {
			r.Post("/{id}/resolve", h.ResolveToken)
		})

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.SaveProduct)
			r.Delete("/{id}", h.DeactivateProduct)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Get("/search", h.SearchUsers)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpsertUser)
			r.Put("/{id}/roles", h.UpdateRoles)
		})

		// Stats routes (owner surface)
		r.Route("/stats", func(r chi.Router) {
			r.Get("/", h.GetStats)
			r.Get("/overview", h.GetOverview)
			r.Get("/activity", h.GetActivity)
		})
	})

	// Observability
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
