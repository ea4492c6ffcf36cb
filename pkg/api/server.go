package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vjranagit/dashboard/pkg/dashboard"
	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/pipeline"
	"github.com/vjranagit/dashboard/pkg/types"
)

const (
	// UserHeader carries the authenticated user id, set by the upstream auth layer.
	UserHeader      = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// Fetcher runs one widget-data invocation.
type Fetcher interface {
	Fetch(ctx context.Context, userID string, spec types.WidgetQuerySpec) (*pipeline.Result, error)
}

// Options configures the server.
type Options struct {
	// Timeout bounds reads, writes and each widget-data request (default: 30s).
	Timeout time.Duration

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Dashboard is served on GET /api/v1/dashboard when set.
	Dashboard *dashboard.Config

	// AllowOrigin is sent as Access-Control-Allow-Origin (default: "*").
	AllowOrigin string

	Logger *slog.Logger
}

// Server implements the HTTP API server
type Server struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(addr string, fetcher Fetcher, opts Options) *Server {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.AllowOrigin == "" {
		opts.AllowOrigin = "*"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", "api"),
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout + 5*time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register handlers
	mux.HandleFunc("/api/v1/widget-data", s.handleWidgetData)
	mux.HandleFunc("/api/v1/dashboard", s.handleDashboard)
	mux.HandleFunc("/health", s.handleHealth)
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return s.withRequestID(s.withCORS(mux))
}

// Start starts the HTTP server. It returns nil once Stop has been called,
// including when Stop ran first.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleWidgetData runs one widget query for the calling user.
func (s *Server) handleWidgetData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeJSON(w, http.StatusMethodNotAllowed, types.Response{
			Data: []types.Record{}, Error: "Method not allowed",
		})
		return
	}

	var spec types.WidgetQuerySpec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&spec); err != nil {
		s.fail(w, r, spec, errs.Validation("invalid request body: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	start := time.Now()
	res, err := s.fetcher.Fetch(ctx, r.Header.Get(UserHeader), spec)
	if err != nil {
		s.fail(w, r, spec, err)
		return
	}

	s.logger.Debug("widget data served",
		"request_id", requestID(r), "store", spec.Store, "series", spec.Series,
		"shape", res.Plan.Shape().String(), "records", len(res.Records), "elapsed", time.Since(start))
	s.writeJSON(w, http.StatusOK, pipeline.Respond(spec, res, nil))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, spec types.WidgetQuerySpec, err error) {
	status := StatusFor(err)
	attrs := []any{"request_id", requestID(r), "status", status, "class", errs.ClassOf(err).String(), "error", err.Error()}
	if status >= http.StatusInternalServerError {
		s.logger.Error("widget data failed", attrs...)
	} else {
		s.logger.Info("widget data rejected", attrs...)
	}
	s.writeJSON(w, status, pipeline.Respond(spec, nil, err))
}

// StatusFor maps an error to the HTTP status of the widget-data endpoint.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrCredentialsMissing):
		return http.StatusInternalServerError
	case errors.Is(err, errs.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleDashboard returns the configured dashboard layout.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Dashboard == nil {
		http.Error(w, "No dashboard configured", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.opts.Dashboard)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err.Error())
	}
}
