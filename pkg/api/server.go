package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/stager/pkg/config"
	"github.com/platinummonkey/stager/pkg/httputil"
	"github.com/platinummonkey/stager/pkg/middleware"
	"github.com/platinummonkey/stager/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxRequestBody bounds staging request bodies; sources are referenced by path
const maxRequestBody = 1 << 20

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records request metrics and serves /metrics from registry
func WithMetrics(m *observability.Metrics, registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = m
		s.registry = registry
	}
}

// WithHealth serves /health, /health/live and /health/ready
func WithHealth(checker *observability.HealthChecker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// WithSubmitLimit throttles POST /stagings per client
func WithSubmitLimit(limiter middleware.Limiter, cfg *middleware.RateLimitConfig) Option {
	return func(s *Server) {
		s.submitLimiter = limiter
		s.submitLimit = cfg
	}
}

// WithPresignExpiry sets how long droplet download URLs stay valid
func WithPresignExpiry(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.presignExpiry = d
		}
	}
}

// Server represents the staging API server
type Server struct {
	svc           StagingService
	router        *mux.Router
	log           *logrus.Logger
	metrics       *observability.Metrics
	registry      *prometheus.Registry
	health        *observability.HealthChecker
	presignExpiry time.Duration
	submitLimiter middleware.Limiter
	submitLimit   *middleware.RateLimitConfig
}

// NewServer creates a new API server
func NewServer(svc StagingService, opts ...Option) *Server {
	s := &Server{
		svc:           svc,
		router:        mux.NewRouter(),
		log:           logrus.New(),
		presignExpiry: config.DefaultPresignExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(httputil.ContentTypeMiddleware, httputil.MaxBytesMiddleware(maxRequestBody))

	var submit http.Handler = http.HandlerFunc(s.submitStaging)
	if s.submitLimiter != nil {
		submit = middleware.RateLimit(s.submitLimiter, s.submitLimit, s.log)(submit)
	}

	v1.Handle("/stagings", submit).Methods(http.MethodPost)
	v1.HandleFunc("/stagings", s.listStagings).Methods(http.MethodGet)
	v1.HandleFunc("/stagings/{id}", s.getStaging).Methods(http.MethodGet)
	v1.HandleFunc("/stagings/{id}/droplet", s.getDroplet).Methods(http.MethodGet)
	v1.HandleFunc("/plugins", s.listPlugins).Methods(http.MethodGet)
	v1.HandleFunc("/plans", s.planStaging).Methods(http.MethodPost)
}

// OpsHandler serves health probes and metrics, kept off the API port so
// probes keep answering while the API is saturated
func (s *Server) OpsHandler() http.Handler {
	r := mux.NewRouter()
	if s.health != nil {
		observability.RegisterHealthRoutes(r, s.health)
	}
	if s.registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods(http.MethodGet)
	}
	return r
}

// ServeHTTP implements http.Handler without the outer middleware
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped with request IDs, logging, panic
// recovery and otel tracing
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.log),
		httputil.RecoveryMiddleware(s.log),
	)
	return otelhttp.NewHandler(chain(s.router), "stager-api")
}

// HTTPServers builds the API and ops listeners from the process configuration
func (s *Server) HTTPServers(cfg config.ServerConfig) (api, ops *http.Server) {
	return s.httpServer(cfg.Address(), s.Handler(), cfg), s.httpServer(cfg.HealthAddress(), s.OpsHandler(), cfg)
}

func (s *Server) httpServer(addr string, h http.Handler, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
