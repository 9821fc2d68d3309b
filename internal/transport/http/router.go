// Package httptransport assembles the public HTTP surface: global middleware,
// the authenticated user routes and the administrator routes.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vitalis/pkg/platform/httputil"
	adminmw "vitalis/pkg/platform/middleware/admin"
	authmw "vitalis/pkg/platform/middleware/auth"
	"vitalis/pkg/platform/middleware/metadata"
	"vitalis/pkg/platform/middleware/request"
	"vitalis/pkg/platform/middleware/requesttime"
)

// Registrar mounts a feature's routes on the router it is given.
type Registrar interface {
	Register(r chi.Router)
}

// RegistrarFunc adapts a plain function to Registrar.
type RegistrarFunc func(r chi.Router)

func (f RegistrarFunc) Register(r chi.Router) { f(r) }

// With mounts reg behind extra middleware that applies only to its routes.
func With(reg Registrar, middlewares ...func(http.Handler) http.Handler) Registrar {
	return RegistrarFunc(func(r chi.Router) {
		reg.Register(r.With(middlewares...))
	})
}

type Config struct {
	AllowedOrigins []string
	JWTValidator   authmw.JWTValidator
	Latency        request.LatencyObserver
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Health backs /healthz; nil always reports ok.
	Health func(r *http.Request) error
}

// NewRouter wires user routes behind authentication and admin routes behind
// authentication plus the admin role check.
func NewRouter(cfg Config, logger *slog.Logger, user []Registrar, admin []Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	if cfg.Latency != nil {
		r.Use(request.Latency(cfg.Latency))
	}
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{
			"Content-Disposition", "X-Content-Checksum", "X-Export-Complete", "X-Request-ID",
			"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(req); err != nil {
				logger.WarnContext(req.Context(), "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.JWTValidator, logger))
		for _, reg := range user {
			reg.Register(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdmin(logger))
			for _, reg := range admin {
				reg.Register(r)
			}
		})
	})
	return r
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
