package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	consenthandler "optin/internal/consent/handler"
	"optin/internal/platform/config"
	"optin/internal/platform/metrics"
	"optin/internal/platform/middleware"
	"optin/internal/site"
	"optin/internal/visitor"
	dErrors "optin/pkg/domain-errors"
	"optin/pkg/platform/httputil"
)

func newRouter(cfg config.Server, log *slog.Logger, m *metrics.Metrics, backend *storageBackend) (http.Handler, error) {
	renderer, err := site.NewRenderer()
	if err != nil {
		return nil, err
	}
	sessions := site.NewSessions(backend.factory, renderer, cfg.MeasurementID, log, m)
	bootstrap := site.NewBootstrap(log, m, site.DefaultInitializers()...)
	clientIP, err := middleware.NewClientIP(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return nil, err
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, log,
		middleware.WithMaxClients(cfg.RateLimit.MaxClients))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata(clientIP))
	r.Use(middleware.Logger(log))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", healthHandler(backend))

	r.Group(func(r chi.Router) {
		if cfg.UsesVisitorID() {
			tokens := visitor.NewTokenService(cfg.Visitor.SigningKey, cfg.Visitor.TTL)
			r.Use(visitor.NewMiddleware(tokens, cfg.Visitor.Secure, log).Handler)
		}
		site.NewHandler(sessions, bootstrap, renderer, log).Register(r)
		consenthandler.New(sessions, log, m, limiter).Register(r)
	})
	return r, nil
}

func healthHandler(backend *storageBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if backend.health != nil {
			if err := backend.health.Health(r.Context()); err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable"))
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
