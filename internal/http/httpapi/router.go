package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagedash/internal/http/handlers"
	"imagedash/internal/infra"
	"imagedash/internal/middleware"
)

// RouterOptions carries the ambient settings of the dashboard surface.
type RouterOptions struct {
	Logger        infra.Logger
	CORSOrigins   []string
	DefaultLocale string
	CountryLookup middleware.CountryLookup
	GenerateRate  int
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", app.GetSession)
			r.Put("/", app.PutSession)
			r.Delete("/", app.DeleteSession)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(app.Session))

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", app.ListJobs)
				r.Post("/refresh", app.RefreshJobs)
				r.Get("/{id}/detail", app.JobDetail)
			})
			r.With(middleware.RateLimit(opts.GenerateRate, time.Minute)).Post("/generate", app.Generate)
			r.Get("/events", app.Events)
		})
	})

	r.Get("/blobs/{key}", app.Blob)

	return r
}
