package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes wires all API routes onto a fresh router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Liveness probe, outside /api
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.ConnectAccount)
			r.Get("/", h.ListAccounts)
			r.Get("/{id}", h.GetAccount)
			r.Patch("/{id}/quota", h.UpdateAccountQuota)
			r.Delete("/{id}", h.ArchiveAccount)
			r.Get("/{id}/can-send", h.CanSend)
			r.Post("/{id}/incidents", h.ReportIncident)
			r.Post("/{id}/replies", h.RecordReply)
			r.Get("/{id}/events", h.AccountEvents)
		})

		r.Route("/health-ledger", func(r chi.Router) {
			r.Get("/summary", h.HealthSummary)
			r.Post("/recompute", h.RecomputeScores)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/{id}", h.GetJob)
			r.Get("/{id}/items", h.JobItems)
			r.Get("/{id}/progress", h.JobProgress)
			r.Post("/{id}/preview", h.PreviewJob)
			r.Post("/{id}/start", h.StartJob)
			r.Post("/{id}/pause", h.PauseJob)
			r.Post("/{id}/resume", h.StartJob)
			r.Post("/{id}/cancel", h.CancelJob)
			r.Post("/{id}/retry", h.RetryJobFailed)
		})

		r.Route("/activation", func(r chi.Router) {
			r.Get("/config", h.GetActivationConfig)
			r.Put("/config", h.UpdateActivationConfig)
			r.Post("/send-now", h.ActivationSendNow)
			r.Get("/log", h.ActivationLogPage)
			r.Delete("/log", h.ClearActivationLog)
			r.Get("/stats", h.ActivationStats)
		})
	})

	return r
}
