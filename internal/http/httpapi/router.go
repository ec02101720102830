package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"promoforge/internal/http/handlers"
	"promoforge/internal/infra"
	"promoforge/internal/middleware"
)

// NewRouter assembles the public API surface.
func NewRouter(app *handlers.App, logger infra.Logger, allowedOrigins []string, rateLimitPerMin int) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.CORS(allowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/", app.JobsList)
		r.Get("/{job_id}", app.JobsGet)
		r.Get("/{job_id}/scenes/status", app.ScenesStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))
			r.Post("/", app.JobsCreate)
			r.Post("/{job_id}/generate", app.JobsGenerate)
		})
	})

	return r
}
