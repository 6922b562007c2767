// Package http exposes the REST and websocket API: account endpoints,
// interview session lifecycle, history and report retrieval, the live
// metrics feed and the browser media ingest.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"hireprep-server/pkg/auth"
	"hireprep-server/pkg/metrics"
	"hireprep-server/pkg/report"
	"hireprep-server/pkg/session"
)

// Sessions is the interview lifecycle as the HTTP layer drives it.
type Sessions interface {
	Create(userID string, cfg session.InterviewConfig) (string, error)
	Start(id string) error
	Stop(id string) error
	State(id string) (session.State, error)
}

// History serves completed interview records for a user.
type History interface {
	List(ctx context.Context, userID string) ([]*session.InterviewSession, error)
	Latest(ctx context.Context, userID string) (*session.InterviewSession, error)
}

// Reports generates post-interview coaching artifacts.
type Reports interface {
	CorrectionModules(ctx context.Context, history []*session.InterviewSession) ([]report.CorrectionModule, error)
	CorrectionDrills(ctx context.Context, modules []report.CorrectionModule) ([]report.DrillItem, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Port          int
	EnableMetrics bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultConfig returns a config suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Port:          8090,
		EnableMetrics: true,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Server is the HTTP server for the interview API.
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	startTime  time.Time

	authService *auth.Service
	sessions    Sessions
	history     History
	reports     Reports
	metricsHub  *MetricsHub
	media       *MediaGateway
}

// Deps carries the server's collaborators. AuthService is required; the
// rest may be nil, which disables the corresponding endpoints.
type Deps struct {
	AuthService *auth.Service
	Sessions    Sessions
	History     History
	Reports     Reports
	MetricsHub  *MetricsHub
	Media       *MediaGateway
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(logger *logrus.Logger, config *Config, deps Deps) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:      config,
		logger:      logger,
		startTime:   time.Now(),
		authService: deps.AuthService,
		sessions:    deps.Sessions,
		history:     deps.History,
		reports:     deps.Reports,
		metricsHub:  deps.MetricsHub,
		media:       deps.Media,
	}

	mux := http.NewServeMux()
	server.mux = mux

	mux.HandleFunc("GET /health", server.healthHandler)
	if config.EnableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	}

	mux.HandleFunc("POST /api/register", server.registerHandler)
	mux.HandleFunc("POST /api/login", server.loginHandler)

	if deps.Sessions != nil {
		mux.HandleFunc("POST /api/sessions", server.createSessionHandler)
		mux.HandleFunc("POST /api/sessions/{id}/start", server.startSessionHandler)
		mux.HandleFunc("POST /api/sessions/{id}/stop", server.stopSessionHandler)
		mux.HandleFunc("GET /api/sessions/{id}", server.sessionStateHandler)
	}
	if deps.History != nil {
		mux.HandleFunc("GET /api/history", server.historyHandler)
		mux.HandleFunc("GET /api/history/latest", server.latestHistoryHandler)
	}
	if deps.Reports != nil {
		mux.HandleFunc("POST /api/drills", server.drillsHandler)
		if deps.History != nil {
			mux.HandleFunc("POST /api/modules", server.modulesHandler)
		}
	}
	if deps.MetricsHub != nil {
		mux.HandleFunc("GET /ws/metrics", deps.MetricsHub.ServeWs)
	}
	if deps.Media != nil {
		mux.HandleFunc("GET /ws/media", deps.Media.ServeMedia)
	}

	middleware := auth.NewMiddleware(deps.AuthService, logger, nil)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      middleware.Handler(mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// Handler exposes the fully wired handler chain, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if s.metricsHub != nil {
		status["ws_clients"] = s.metricsHub.ClientCount()
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
