// Package httptransport assembles the chi router: base middleware, the
// public login routes, and every module's authenticated routes behind the
// bearer-token check.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"benefits/internal/platform/metrics"
	"benefits/pkg/platform/httputil"
	authmw "benefits/pkg/platform/middleware/auth"
	"benefits/pkg/platform/middleware/metadata"
	"benefits/pkg/platform/middleware/request"
	"benefits/pkg/platform/middleware/requesttime"
)

// Module mounts a group of authenticated routes.
type Module interface {
	Register(r chi.Router)
}

// PublicModule mounts routes that run without a token.
type PublicModule interface {
	RegisterPublic(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Validator   authmw.JWTValidator
	Revocations authmw.TokenRevocationChecker
	Public      []PublicModule
	Modules     []Module

	// TrustedProxies may report the client address in forwarding headers.
	TrustedProxies metadata.TrustedProxies

	// PublicLimit, when set, wraps the public routes.
	PublicLimit func(http.Handler) http.Handler

	// Health maps a dependency name to its check; /health fails when any does.
	Health map[string]HealthCheck
}

const healthTimeout = 2 * time.Second

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(deps.TrustedProxies))
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", healthHandler(deps.Health))

	r.Group(func(r chi.Router) {
		if deps.PublicLimit != nil {
			r.Use(deps.PublicLimit)
		}
		for _, m := range deps.Public {
			m.RegisterPublic(r)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.Validator, deps.Revocations, deps.Logger))
		for _, m := range deps.Modules {
			m.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
