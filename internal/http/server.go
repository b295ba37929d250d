// Package http exposes the ledger, its reports and the currency conversion
// as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"despesas/internal/currency"
	"despesas/internal/ledger"
	applog "despesas/internal/log"
	"despesas/internal/middleware/ratelimit"
	"despesas/internal/middleware/security"
	"despesas/internal/middleware/trace"
)

type Server struct {
	http.Server
	ledger  *ledger.Ledger
	tracker *currency.Tracker

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *applog.Logger
	now      func() time.Time

	// conversionWait bounds how long POST /api/conversion waits for its result.
	conversionWait time.Duration

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(logger *applog.Logger) Option {
	return func(s *Server) { s.logger = logger.WithComponent(applog.ComponentHTTP) }
}

// WithClock sets the clock used for default report periods.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRateLimit replaces the default limiter. Without Methods only mutating
// requests are limited.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if len(cfg.Methods) == 0 {
			cfg.Methods = mutatingMethods
		}
		s.limiter.Stop()
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

// WithTrustedProxies makes the listed CIDRs' X-Forwarded-For header count as
// the client address for rate limiting and logging.
func WithTrustedProxies(cidrs ...string) Option {
	return func(s *Server) {
		for _, cidr := range cidrs {
			if err := s.detector.AddTrustedProxy(cidr); err != nil {
				s.logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
			}
		}
	}
}

func WithConversionWait(d time.Duration) Option {
	return func(s *Server) { s.conversionWait = d }
}

// mutatingMethods are the methods subject to per-client rate limiting.
var mutatingMethods = []string{http.MethodPost, http.MethodPut, http.MethodDelete}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, led *ledger.Ledger, tracker *currency.Tracker, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		ledger:         led,
		tracker:        tracker,
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerWindow: 60, Window: time.Minute, Methods: mutatingMethods}),
		detector:       security.NewDetector(),
		logger:         applog.Default(applog.ComponentHTTP),
		now:            time.Now,
		conversionWait: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/taxonomy", s.handleTaxonomy)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleAddExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleRemoveExpense)
	mux.HandleFunc("POST /api/expenses/{id}/edit", s.handleStartEdit)

	mux.HandleFunc("GET /api/edit", s.handleGetEdit)
	mux.HandleFunc("PUT /api/edit", s.handleUpdateEdit)
	mux.HandleFunc("DELETE /api/edit", s.handleCancelEdit)
	mux.HandleFunc("POST /api/edit/commit", s.handleCommitEdit)

	mux.HandleFunc("GET /api/reports/overview", s.handleOverview)
	mux.HandleFunc("GET /api/reports/trend", s.handleTrend)

	mux.HandleFunc("GET /api/conversion", s.handleGetConversion)
	mux.HandleFunc("POST /api/conversion", s.handleRequestConversion)

	s.Handler = s.wrap(mux)
	return s
}

// wrap applies, outermost first: request logger, tracing, request-scoped
// logger fields, probe detection, security headers and rate limiting.
func (s *Server) wrap(next http.Handler) http.Handler {
	h := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(next)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = s.tracer.Middleware(h)
	return applog.Middleware(s.logger)(h)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

// Shutdown stops background work and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics reports request counters collected by the middleware.
func (s *Server) Metrics() map[string]int64 {
	m := s.tracer.GetMetrics()
	return map[string]int64{
		"requests_total":      m.TotalRequests,
		"server_errors":       m.ServerErrors,
		"rate_limited":        s.limiter.Hits(),
		"rate_limit_clients":  int64(s.limiter.ActiveClients()),
		"suspicious_requests": s.detector.GetMetrics().SuspiciousRequests,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil || s.tracker == nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
