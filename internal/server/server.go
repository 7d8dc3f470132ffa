// Package server exposes the monitor over HTTP: health probes, repair and
// error-pattern reports, Prometheus metrics and remote sample ingestion.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"buddy-monitor/internal/config"
	"buddy-monitor/internal/errpattern"
	"buddy-monitor/internal/healing"
	"buddy-monitor/internal/health"
	"buddy-monitor/internal/metrics"
	"buddy-monitor/pkg/errors"
	"buddy-monitor/pkg/logger"
)

// Dependencies are the components the server reports on. Gatherer is
// optional; without it /metrics is not served.
type Dependencies struct {
	Monitor  *health.Monitor
	Trigger  *healing.Trigger
	Tracker  *errpattern.Tracker
	Store    *metrics.Store
	Gatherer prometheus.Gatherer
}

// Server provides the HTTP surface of the monitor
type Server struct {
	cfg      config.ServerConfig
	deps     Dependencies
	logger   *logger.Logger
	router   *chi.Mux
	validate *validator.Validate

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates the server and builds its routes
func New(cfg config.ServerConfig, deps Dependencies, log *logger.Logger) (*Server, error) {
	if deps.Monitor == nil || deps.Trigger == nil || deps.Tracker == nil || deps.Store == nil {
		return nil, errors.NewValidationError("MISSING_DEPENDENCY", "server requires monitor, trigger, tracker and store")
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   log.WithComponent("http-server"),
		validate: validator.New(),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.handleHealth)
		r.Get("/live", s.handleLiveness)
		r.Get("/ready", s.handleReadiness)
		r.Get("/detailed", s.handleDetailedHealth)
		r.Get("/checks", s.handleChecks)
		r.Post("/checks/{name}/poll", s.handlePollCheck)
		r.Get("/errors", s.handleErrorPatterns)
		r.Get("/healing", s.handleHealingHistory)
		r.Get("/healing/attempts", s.handleHealingAttempts)
	})

	if s.deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/api/samples", s.handleRecordSample)

	return r
}

// recoverer turns a handler panic into a 500 and an error pattern.
// http.ErrAbortHandler is passed through for net/http to handle.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			s.deps.Tracker.RecordPanic("http", rec,
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("request_id", middleware.GetReqID(r.Context())),
				logger.Stack("stack"))

			if r.Header.Get("Connection") != "Upgrade" {
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Mount attaches an application handler under pattern. Every request it
// serves is recorded as a performance sample. Call before Start.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.With(s.deps.Store.Middleware).Mount(pattern, h)
}

// Start binds the configured port and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "LISTEN_FAILED",
			fmt.Sprintf("failed to listen on port %d", s.cfg.Port))
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", logger.String("addr", ln.Addr().String()))

	srv := s.server
	go func() {
		_ = s.deps.Tracker.Guard("http-server", func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				s.logger.Error("HTTP server failed", logger.Err(err))
			}
		})
	}()

	return nil
}

// Addr returns the bound address, or "" before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")
	return srv.Shutdown(ctx)
}

// handleHealth reports the aggregate of the cached readings
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall := s.deps.Monitor.CurrentHealth()

	s.writeJSON(w, statusToHTTPCode(overall.Status), map[string]interface{}{
		"status":    overall.Status,
		"timestamp": overall.Timestamp,
		"uptime":    overall.Uptime.String(),
		"service":   overall.ServiceName,
		"summary":   overall.Summary,
	})
}

// handleLiveness only verifies the process is serving
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
		"polling":   s.deps.Monitor.IsRunning(),
	})
}

// handleReadiness treats anything but unhealthy as ready
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	overall := s.deps.Monitor.CurrentHealth()
	ready := overall.Status != health.StatusUnhealthy

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]interface{}{
		"status":    map[bool]string{true: "ready", false: "not_ready"}[ready],
		"timestamp": time.Now(),
		"health":    overall.Status,
	})
}

// handleDetailedHealth runs every check now and returns all readings
func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	overall := s.deps.Monitor.GetHealth(r.Context())
	s.writeJSON(w, statusToHTTPCode(overall.Status), overall)
}

func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"checks":    s.deps.Monitor.Checks(),
		"jobs":      s.deps.Monitor.Jobs(),
		"scheduler": s.deps.Monitor.SchedulerInfo(),
	}
	if err := s.deps.Monitor.PollingHealth(); err != nil {
		resp["polling_error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handlePollCheck runs one polling pass of a check now and returns its
// fresh reading
func (s *Server) handlePollCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.deps.Monitor.Poll(r.Context(), name); err != nil {
		if errors.IsType(err, errors.ErrorTypeValidation) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Warn("On-demand poll failed", logger.String("check", name), logger.Err(err))
	}

	s.writeJSON(w, http.StatusOK, s.deps.Monitor.Snapshot()[name])
}

func (s *Server) handleErrorPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := s.deps.Tracker.Summary()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"total":    len(patterns),
		"evicted":  s.deps.Tracker.Evicted(),
	})
}

func (s *Server) handleHealingHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"repairs":    s.deps.Trigger.History(),
		"registered": s.deps.Trigger.Names(),
	})
}

func (s *Server) handleHealingAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"attempts": s.deps.Trigger.Attempts(limit),
	})
}

// sampleRequest is a performance sample reported by the monitored backend
type sampleRequest struct {
	Endpoint       string `json:"endpoint" validate:"required,max=512"`
	ResponseTimeMS int64  `json:"response_time_ms" validate:"min=0"`
	StatusCode     int    `json:"status_code" validate:"required,min=100,max=599"`
}

func (s *Server) handleRecordSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, formatValidationError(err))
		return
	}

	s.deps.Store.Record(req.Endpoint, time.Duration(req.ResponseTimeMS)*time.Millisecond, req.StatusCode)
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"recorded": true,
		"samples":  s.deps.Store.Len(),
	})
}

// statusToHTTPCode converts health status to appropriate HTTP status code
func statusToHTTPCode(status health.Status) int {
	switch status {
	case health.StatusHealthy, health.StatusDegraded:
		return http.StatusOK
	case health.StatusUnhealthy, health.StatusUnknown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", logger.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]string{"error": message})
}

func formatValidationError(err error) string {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrs) == 0 {
		return err.Error()
	}

	fe := validationErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", fe.Field(), fe.Tag())
	}
}
