/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/collaborators/*   Unified roster and eligibility
  /api/tr/*              Meal-voucher entitlements and CSV export
  /api/plan-charge/*     Monthly projection
  /api/forecasts/*       Forecast rows and batches
  /api/sync/*            Provider syncs and status

SECURITY NOTE:
  No authentication middleware. The service is deployed behind the
  company reverse proxy which owns auth.

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
)

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/collaborators", func(r chi.Router) {
			r.Get("/", h.ListCollaborators)
			r.Get("/stats", h.GetStats)
			r.Patch("/{id}", h.UpdateCollaborator)
		})

		r.Route("/tr", func(r chi.Router) {
			r.Get("/rights/{year}/{month}", h.GetAllTRRights)
			r.Get("/rights/{year}/{month}/{email}", h.GetTRRights)
			r.Get("/working-days/{year}/{month}", h.GetWorkingDays)
			r.Get("/export/{year}/{month}", h.ExportTRCSV)
		})

		r.Get("/plan-charge/{year}/{month}", h.GetPlanCharge)

		r.Route("/forecasts", func(r chi.Router) {
			r.Get("/", h.ListForecasts)
			r.Post("/", h.CreateForecast)
			r.Post("/batch", h.CreateForecastBatch)
			r.Delete("/group", h.DeleteForecastGroup)
			r.Get("/{id}/group", h.GetForecastGroup)
			r.Put("/{id}", h.UpdateForecast)
			r.Delete("/{id}", h.DeleteForecast)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/payroll", h.SyncPayroll)
			r.Post("/timetrack", h.SyncTimetrack)
			r.Post("/full", h.SyncFull)
			r.Get("/status", h.GetSyncStatus)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
