// Package httpapi assembles the HTTP surface: middleware chain, health and
// metrics endpoints, and the route groups each handler package mounts into.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "unionregistry/internal/audit/handler"
	authhandler "unionregistry/internal/auth/handler"
	dealerhandler "unionregistry/internal/dealer/handler"
	"unionregistry/internal/platform/metrics"
	registryhandler "unionregistry/internal/registry/handler"
	transferhandler "unionregistry/internal/transfer/handler"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/platform/httputil"
	"unionregistry/pkg/platform/middleware/admin"
	"unionregistry/pkg/platform/middleware/auth"
	"unionregistry/pkg/platform/middleware/metadata"
	request "unionregistry/pkg/platform/middleware/request"
	"unionregistry/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 15 * time.Second

// Handlers are the domain handlers mounted under /api.
type Handlers struct {
	Registry *registryhandler.Handler
	Transfer *transferhandler.Handler
	Dealer   *dealerhandler.Handler
	Auth     *authhandler.Handler
	Audit    *audithandler.Handler
}

// Config carries the cross-cutting collaborators of the router.
type Config struct {
	Logger         *slog.Logger
	Tokens         auth.TokenValidator
	AdminToken     string
	RequestTimeout time.Duration
	// Metrics is optional; nil disables latency histograms.
	Metrics *metrics.Metrics
	// Ready is optional; a non-nil error turns /healthz into 503.
	Ready func(ctx context.Context) error
}

// NewRouter wires every public endpoint.
//
//	/healthz, /metrics                 unauthenticated
//	/api/admin/login, /api/dealer/login, /api/auth/verify-totp
//	                                   anonymous login steps
//	/api/auth/*, /api/dealer/change-password
//	                                   session token required
//	/api/admin/*, /api/audit           admin session or X-Admin-Token
//	everything else under /api         actor required (session or X-Actor)
func NewRouter(cfg Config, h Handlers) http.Handler {
	logger := cfg.Logger
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/healthz", healthz(cfg.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(request.Timeout(timeout))
		r.Use(auth.Authenticate(cfg.Tokens, logger))

		h.Auth.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(logger))
			h.Auth.RegisterSession(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireActor(logger))
			h.Registry.Register(r)
			h.Transfer.Register(r)
			h.Dealer.RegisterPublic(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(cfg.AdminToken, logger))
			r.Use(auth.RequireActor(logger))
			h.Audit.Register(r)
			r.Route("/admin", func(r chi.Router) {
				h.Dealer.RegisterAdmin(r)
				h.Auth.RegisterAdmin(r)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
