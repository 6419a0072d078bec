package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/puzzle-proxy/internal/id/uuid"
	"github.com/JakeFAU/puzzle-proxy/internal/metrics"
	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

// Failure policies for unexpected resolution errors.
const (
	FailurePolicyError       = "error"
	FailurePolicyPlaceholder = "placeholder"
)

// PuzzleResolver resolves a date into a puzzle document.
type PuzzleResolver interface {
	Resolve(ctx context.Context, key puzzle.DateKey) (resolver.Result, error)
}

// RequestIDGenerator produces per-request identifiers.
type RequestIDGenerator interface {
	NewRequestID() string
}

// ReadinessCheck reports whether dependencies are usable.
type ReadinessCheck func(ctx context.Context) error

// Options tune Server behavior.
type Options struct {
	// FailurePolicy is FailurePolicyError (default) or FailurePolicyPlaceholder.
	FailurePolicy string
	RequestIDs    RequestIDGenerator
	Readiness     []ReadinessCheck
}

// Server wires HTTP handlers to the resolver.
type Server struct {
	router   chi.Router
	resolver PuzzleResolver
	logger   *zap.Logger
	opts     Options
}

// NewServer constructs a Server with middleware and routes.
func NewServer(res PuzzleResolver, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = FailurePolicyError
	}
	if opts.RequestIDs == nil {
		opts.RequestIDs = uuid.New()
	}
	s := &Server{
		resolver: res,
		logger:   logger,
		opts:     opts,
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(requestIDMiddleware(opts.RequestIDs))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errorPayload{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errorPayload{Error: "Method not allowed"})
	})

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.HandleFunc("/api/mini", s.puzzle)
	r.HandleFunc("/v1/puzzle", s.puzzle)

	s.router = r
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "puzzle-proxy",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.opts.Readiness {
		if err := check(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, errorPayload{Error: "Not ready", Details: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
