package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"lumenworks/internal/http/handlers"
	"lumenworks/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Cfg.CORSOrigins),
		middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/convert", func(r chi.Router) {
		r.Post("/", app.ConvertImage)
		r.Post("/batch", app.ConvertBatch)
	})

	r.Route("/v1/drawings", func(r chi.Router) {
		r.Post("/", app.DrawingsCreate)
		r.Get("/{urn}/status", app.TranslationStatus)
	})

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/{job_id}/events", app.JobEvents)
		r.Get("/{job_id}/download", app.JobDownload)
	})

	r.Get("/v1/viewer/token", app.ViewerToken)

	return r
}
