// Package server implements the dashboard API: a thin, quota-aware proxy
// from the dashboard endpoints to the GitHub REST API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/billing"
)

// Config configures the API server.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`

	// APIURL is the upstream GitHub REST endpoint.
	APIURL string
	// Org restricts repository listing to one organization when set.
	Org string

	BillingEnabled bool
	Limits         billing.Limits

	// UserTTL is how long a token's user lookup is reused.
	UserTTL time.Duration
	// FanOut bounds concurrent upstream calls per batch request.
	FanOut int
}

const (
	defaultUserTTL = 5 * time.Minute
	defaultFanOut  = 10
)

// TierSource resolves a user's billing tier.
type TierSource interface {
	Tier(ctx context.Context, githubUserID string) (billing.Tier, error)
}

// Option customizes a Server.
type Option func(*Server)

// WithTransport routes upstream GitHub calls through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Server) { s.transport = rt }
}

// WithRegistry registers metrics with reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// Server is the dashboard API.
type Server struct {
	cfg       Config
	tiers     TierSource
	log       *zap.Logger
	transport http.RoundTripper
	registry  *prometheus.Registry
	metrics   *metrics
	users     *userCache
	now       func() time.Time
	handler   http.Handler
}

// New builds a server. tiers may be nil, in which case every user is on the
// free tier.
func New(cfg Config, tiers TierSource, log *zap.Logger, opts ...Option) *Server {
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = defaultUserTTL
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = defaultFanOut
	}
	if cfg.Limits == (billing.Limits{}) {
		cfg.Limits = billing.DefaultLimits
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{cfg: cfg, tiers: tiers, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)
	s.users = newUserCache(cfg.UserTTL, s.now)
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/auth/me", s.handleMe)

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/batch", s.handleBatch)

			r.Route("/{owner}/{repo}", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Get("/sync", s.handleSync)

				r.Route("/jobs/{jobId}", func(r chi.Router) {
					r.Get("/logs", s.handleJobLogs)
					r.Post("/rerun", s.handleRerunJob)
				})

				r.Route("/{runId}", func(r chi.Router) {
					r.Get("/", s.handleRunDetails)
					r.Get("/status", s.handleRunStatus)
					r.Post("/rerun", s.handleRerun)
				})
			})
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.GracefulTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info("shutting down", zap.Duration("timeout", timeout))
	return srv.Shutdown(shutdownCtx)
}
