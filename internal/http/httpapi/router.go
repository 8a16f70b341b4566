package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"modelshoot/internal/http/handlers"
	"modelshoot/internal/infra"
	"modelshoot/internal/metrics"
	"modelshoot/internal/middleware"
)

// Options carries the settings the middleware chain needs.
type Options struct {
	JWTSecret       string
	WorkerSecret    string
	DefaultLocale   string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
	CORSOrigins     []string
	// StaticDir serves rendered outputs under /static when set.
	StaticDir string
}

// OptionsFromConfig maps application config onto router options.
func OptionsFromConfig(cfg *infra.Config, lookup middleware.CountryLookup) Options {
	return Options{
		JWTSecret:       cfg.JWTSecret,
		WorkerSecret:    cfg.WorkerSecret,
		DefaultLocale:   cfg.DefaultLocale,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
		CORSOrigins:     cfg.CORSOrigins,
		StaticDir:       cfg.StoragePath,
	}
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.Logger(app.Logger),
		middleware.Metrics,
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Post("/jobs", app.SubmitJobs)
		r.Get("/jobs/{id}", app.JobStatus)
		r.Post("/jobs/{id}/cancel", app.CancelJob)
		r.Get("/batches/{id}", app.BatchStatus)
		r.Post("/batches/{id}/cancel", app.CancelBatch)
		r.Get("/batches/{id}/archive", app.BatchArchive)

		r.Get("/me", app.Me)
		r.Get("/me/entries", app.MyEntries)

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/", app.CreatePayout)
			r.Get("/", app.ListPayouts)
			r.Get("/{id}", app.GetPayout)
			r.Post("/{id}/cancel", app.CancelPayout)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/accounts", app.OpenAccount)
			r.Post("/accounts/{id}/adjust", app.AdjustAccount)
			r.Post("/accounts/{id}/purchases", app.RecordPurchase)
			r.Get("/accounts/{id}/reconcile", app.ReconcileAccount)
			r.Post("/batches/{id}/reconcile", app.ReconcileBatch)
			r.Post("/payouts/{id}/actions", app.PayoutAction)
		})
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.WorkerSecret(opts.WorkerSecret))
		r.Post("/worker/tick", app.WorkerTick)
	})

	return r
}
