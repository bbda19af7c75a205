package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Provisioning: issues broker credentials, rotates on re-register
		r.Post("/provision", s.handleProvision)

		// Device endpoints. Device records are created by provisioning
		// (or ingestion in permissive mode), never through this API.
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{mac}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)

				r.Get("/measurements", s.handleListMeasurements)
				r.Get("/measurements/latest", s.handleLatestMeasurement)

				r.Get("/alerts", s.handleListAlerts)
				r.Get("/alerts/unread-count", s.handleUnreadAlertCount)
				r.Post("/alerts/{id}/read", s.handleMarkAlertRead)

				r.Post("/commands/water", s.handleWaterCommand)
				r.Post("/commands/measure", s.handleMeasureCommand)

				r.Get("/settings", s.handleGetSettings)
				r.Put("/settings", s.handleUpdateSettings)
				r.Post("/settings/reset", s.handleResetSettings)
			})
		})

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
