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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/challenges/*       Challenge catalog + join/aggregate/leaderboard
  /api/participations/*   Participation lifecycle and events
  /api/users/*            Current participation lookup
  /api/scenarios/*        Demo scenarios
  /metrics                Prometheus metrics

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Challenge routes
		r.Route("/challenges", func(r chi.Router) {
			r.Get("/", h.ListChallenges)
			r.Post("/", h.CreateChallenge)
			r.Get("/{id}", h.GetChallenge)
			r.Post("/{id}/join", h.JoinChallenge)
			r.Get("/{id}/aggregate", h.GetAggregate)
			r.Get("/{id}/leaderboard", h.GetLeaderboard)
		})

		// Participation routes
		r.Route("/participations", func(r chi.Router) {
			r.Get("/{id}", h.GetParticipation)
			r.Delete("/{id}", h.LeaveParticipation)
			r.Get("/{id}/events", h.GetParticipationEvents)
			r.Post("/{id}/contributions", h.RecordContribution)
			r.Post("/{id}/abandon", h.AbandonParticipation)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/participation", h.GetUserParticipation)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	return r
}
