package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/handlers"
	"github.com/tessera-ai/tessera/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator    middleware.AuthValidator
	IndexHandler     *handlers.IndexHandler
	SearchHandler    *handlers.SearchHandler
	ContextHandler   *handlers.ContextHandler
	StatsHandler     *handlers.StatsHandler
	RunsHandler      *handlers.RunsHandler
	FragmentsHandler *handlers.FragmentsHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/index", cfg.IndexHandler.Trigger)

		r.Get("/search", cfg.SearchHandler.Search)
		r.Get("/context", cfg.ContextHandler.Build)
		r.Get("/stats", cfg.StatsHandler.Stats)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", cfg.RunsHandler.List)
			r.Get("/{run_id}", cfg.RunsHandler.Get)
			r.Post("/{run_id}/cancel", cfg.RunsHandler.Cancel)
		})

		r.Route("/fragments", func(r chi.Router) {
			r.Get("/", cfg.FragmentsHandler.List)
			r.Get("/{id}", cfg.FragmentsHandler.Get)
			r.Get("/{id}/related", cfg.FragmentsHandler.Related)
		})
	})

	return r
}
