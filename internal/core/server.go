// Package core provides the HTTP chassis for the codetutor API: a chi router,
// the cross-cutting middleware (logging, request IDs, auth, rate limits, plan
// quotas, code size) and the response envelopes shared by all handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"codetutor/internal/config"
	"codetutor/internal/metrics"
)

// Server holds every dependency of the HTTP layer. Fields are exported so
// that cmd/api and tests can inject implementations before MountRoutes.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       metrics.Recorder
	Authenticator Authenticator

	// Limiters maps limiter names (ratelimit.Login, ...) to their limiter.
	// A route whose limiter is missing is not rate limited.
	Limiters map[string]RateLimiter
	Quota    QuotaChecker
	Usage    UsageRecorder

	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. Handler packages
	// depend on core, so core cannot import them.
	V1RouteRegistrars []func(r chi.Router)

	// MetricsHandler, when set, is served at GET /metrics.
	MetricsHandler http.Handler

	// Closers run on Shutdown in order (pools, clients).
	Closers []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer creates a Server with an empty router. The caller injects
// dependencies and then calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		Metrics:   metrics.Nop{},
		Limiters:  map[string]RateLimiter{},
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources. All closers run; the first error is
// returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var first error
	for _, closeFn := range s.Closers {
		if err := closeFn(ctx); err != nil {
			s.Logger.Error("error closing resource", "error", err)
			if first == nil {
				first = fmt.Errorf("closing resources: %w", err)
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return first
}

func (s *Server) metrics() metrics.Recorder {
	if s.Metrics == nil {
		return metrics.Nop{}
	}
	return s.Metrics
}
