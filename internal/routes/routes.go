package routes

import (
	"log/slog"
	"net/http"
	"time"

	handlers "github.com/g-abate/rate-compare/internal/http"
	mid "github.com/g-abate/rate-compare/internal/middleware"
	"github.com/g-abate/rate-compare/internal/obs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func GetRoutes(h *handlers.Handler, metrics *obs.Metrics, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	// Useful built-in middlewares
	r.Use(middleware.RealIP)    // proper client IP extraction
	r.Use(middleware.RequestID) // sets request ID header
	r.Use(middleware.Recoverer) // built-in recoverer to avoid panics taking server down

	// The comparison widget is embedded on property sites, so the rates
	// endpoint is called cross-origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// our custom middlewares: logging, metrics & timeout
	r.Use(mid.MetricsMiddleware(metrics))
	r.Use(mid.LoggingMiddleware(logger))
	r.Use(mid.TimeoutMiddleware(10 * time.Second))

	// endpoints
	r.Get("/rates", h.Rates)
	r.Put("/config", h.UpdateConfig)
	r.Delete("/cache", h.InvalidateCache)
	r.Get("/healthz", h.Healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	return r
}
