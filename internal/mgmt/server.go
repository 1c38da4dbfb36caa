// Package mgmt serves the management HTTP API: health, status,
// metrics, manual overrides, A/B test inspection and a live activity
// feed over websocket.
package mgmt

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/agent"
	"github.com/blueherald/blueherald/internal/alerts"
	"github.com/blueherald/blueherald/internal/archive"
	"github.com/blueherald/blueherald/internal/metrics"
	"github.com/blueherald/blueherald/internal/optimize"
	"github.com/blueherald/blueherald/internal/scheduler"
)

// Config holds HTTP server settings.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig binds to localhost only.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the components the API exposes.
type Deps struct {
	Agent     *agent.Agent
	Optimizer *optimize.Service
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Registry
	Alerts    *alerts.Manager
	Archive   *archive.Archive
	// ConfigView is the sanitized configuration served at /config.
	ConfigView map[string]interface{}
}

// Server is the management HTTP server.
type Server struct {
	config  Config
	deps    Deps
	router  *mux.Router
	server  *http.Server
	started time.Time
}

// NewServer builds the server and registers all routes.
func NewServer(config Config, deps Deps) *Server {
	s := &Server{
		config:  config,
		deps:    deps,
		router:  mux.NewRouter(),
		started: time.Now(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	// The websocket upgrade and the Prometheus handler manage their
	// own response encoding.
	s.router.HandleFunc("/ws/activity", s.handleActivityFeed).Methods("GET")
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonMiddleware)
	api.Use(s.timeoutMiddleware)

	api.HandleFunc("/", s.handleIndex).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/health/detailed", s.handleDetailedHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/activity", s.handleActivity).Methods("GET")
	api.HandleFunc("/config", s.handleConfig).Methods("GET")

	api.HandleFunc("/overrides", s.handleGetOverrides).Methods("GET")
	api.HandleFunc("/overrides", s.handleSetOverride).Methods("POST")
	api.HandleFunc("/overrides/{type}", s.handleRemoveOverride).Methods("DELETE")
	api.HandleFunc("/control/skip-next-post", s.handleSkipNextPost).Methods("POST")
	api.HandleFunc("/control/force-approve-content", s.handleForceApprove).Methods("POST")

	api.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}/acknowledge", s.handleAcknowledgeAlert).Methods("POST")
	api.HandleFunc("/alerts/{id}/resolve", s.handleResolveAlert).Methods("POST")

	api.HandleFunc("/tests", s.handleTests).Methods("GET")
	api.HandleFunc("/tests/{id}/analysis", s.handleTestAnalysis).Methods("GET")
	api.HandleFunc("/tests/{id}/export", s.handleTestExport).Methods("GET")
	api.HandleFunc("/optimize/cycle", s.handleOptimizationCycle).Methods("POST")

	api.HandleFunc("/archive/posts", s.handleArchivedPosts).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "endpoint not found"})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("management API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("management API shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), requestID)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Debug().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
