/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/groups/{groupID}/*   Clan, members, runs, progress, queue, stats
  /api/scenarios            Demo scenarios
  /api/union-run            Two-member kill planner
  /metrics                  Prometheus scrape endpoint

SECURITY NOTE:
  The caller is taken from the X-User-ID and X-Admin headers. Run the
  server behind the chat bot that sets them; it must not be exposed
  directly.

SEE ALSO:
  - handlers.go: Handler implementations
  - subscriptions.go: Queue handlers
  - cmd/clanbattle/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerUserID, headerAdmin},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/scenarios", h.ListScenarios)
		r.Post("/union-run", h.UnionRun)

		r.Route("/groups/{groupID}", func(r chi.Router) {
			// Clan routes
			r.Get("/clan", h.GetClan)
			r.Post("/clan", h.CreateClan)
			r.Put("/clan", h.SaveClan)
			r.Delete("/clan", h.DeleteClan)
			r.Get("/clans", h.ListClans)

			// Member routes
			r.Route("/members", func(r chi.Router) {
				r.Get("/", h.ListMembers)
				r.Post("/", h.AddMember)
				r.Delete("/", h.ClearMembers)
				r.Post("/batch", h.BatchAddMembers)
				r.Get("/{userID}", h.GetMember)
				r.Put("/{userID}", h.RenameMember)
				r.Delete("/{userID}", h.RemoveMember)
				r.Get("/{userID}/runs", h.ListMemberRuns)
				r.Get("/{userID}/subscriptions", h.ListMemberSubscriptions)
			})

			// Run routes
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.ListRuns)
				r.Post("/", h.SubmitRun)
				r.Post("/raw", h.AddRawRun)
				r.Get("/{runID}", h.GetRun)
				r.Put("/{runID}", h.ModifyRun)
				r.Delete("/{runID}", h.RemoveRun)
			})

			// Progress routes
			r.Get("/progress", h.GetProgress)
			r.Post("/progress", h.ChangeProgress)
			r.Get("/bosses/{round}/{boss}", h.GetBossInfo)
			r.Delete("/bosses/{round}/{boss}/subscriptions", h.ClearTarget)
			r.Get("/tiers/{round}", h.GetTier)

			// Queue routes
			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", h.ListSubscriptions)
				r.Post("/", h.Subscribe)
				r.Get("/all", h.ListAllEntries)
				r.Delete("/{entryID}", h.Unsubscribe)
				r.Post("/{entryID}/swap", h.SwapRound)
			})
			r.Route("/locks", func(r chi.Router) {
				r.Get("/", h.ListLocks)
				r.Post("/", h.LockBoss)
				r.Post("/ahead", h.LockBossAhead)
				r.Delete("/", h.UnlockBoss)
			})
			r.Get("/ontree", h.ListOnTree)
			r.Post("/ontree", h.OnTree)

			// Stats routes
			r.Get("/stats/damage", h.SumDamage)
			r.Get("/stats/score", h.SumScore)
			r.Get("/stats/remain", h.RemainRuns)
			r.Post("/remind", h.Remind)
			r.Get("/notifications", h.ListNotifications)

			// Scenario routes
			r.Get("/scenario", h.GetCurrentScenario)
			r.Post("/scenarios/load", h.LoadScenario)
		})
	})

	return r
}
