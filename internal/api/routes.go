package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// SetupRoutes configures all routes. health may be nil, in which case only a
// static liveness response is served on /health.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health == nil {
		health = NewHealthChecker(nil, nil, nil)
	}
	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/datasets", func(r chi.Router) {
			r.Post("/sql", h.BuildDatasetSQL)
			r.Post("/parse", h.ParseDatasetSQL)
		})

		r.Route("/segments", func(r chi.Router) {
			r.Post("/compile", h.CompileSegment)
			r.Post("/population", h.SegmentPopulation)
		})

		r.Post("/templates/preview", h.PreviewTemplate)

		r.Route("/cubes", func(r chi.Router) {
			r.Post("/describe", h.DescribeCube)
			r.Post("/values", h.CubeValues)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/sms/process", h.ProcessSMSJobs)
			r.Get("/{id}/sql", h.GetJobSQL)
			r.Post("/{id}/process", h.ProcessJob)
		})
	})

	return r
}
