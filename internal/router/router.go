package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grandgold-errcache/internal/handler"
	"grandgold-errcache/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ErrorsHandler  *handler.ErrorsHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
	AllowedOrigins []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.AuthMiddleware != nil {
		r.Use(cfg.AuthMiddleware)
	}

	r.Handle("/metrics", promhttp.Handler())

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.ErrorsHandler != nil {
			r.Route("/errors", func(r chi.Router) {
				r.Delete("/", cfg.ErrorsHandler.ClearAll)
				r.Post("/report", cfg.ErrorsHandler.Report)
				r.Post("/dismiss", cfg.ErrorsHandler.Dismiss)
				r.Post("/retry/check", cfg.ErrorsHandler.CheckRetry)
				r.Post("/retry", cfg.ErrorsHandler.RecordRetry)
				r.Post("/inspect", cfg.ErrorsHandler.Inspect)
				r.Post("/clear", cfg.ErrorsHandler.Clear)
				r.Get("/log", cfg.ErrorsHandler.Log)
			})
		}

		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Get("/stats", cfg.AdminHandler.GetStats)
				r.Post("/cleanup", cfg.AdminHandler.RunCleanup)
			})
		}
	})

	return r
}
