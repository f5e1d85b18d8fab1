package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xpress-ops/riskcore/internal/alert"
	"github.com/xpress-ops/riskcore/internal/cluster"
	"github.com/xpress-ops/riskcore/internal/domain"
	"github.com/xpress-ops/riskcore/internal/history"
	"github.com/xpress-ops/riskcore/internal/pattern"
	"github.com/xpress-ops/riskcore/internal/scoring"
)

// ClusterRunner triggers one clustering pass outside the periodic schedule.
type ClusterRunner interface {
	RunOnce(ctx context.Context, tenantID string) (int, error)
}

// Dependencies bundles the components the API serves. Nil fields degrade the
// corresponding endpoints to 503 instead of failing startup.
type Dependencies struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Engine     *scoring.Engine
	History    *history.Service
	Matcher    *pattern.Matcher
	Clusters   *cluster.Engine
	Alerts     *alert.Store
	ClusterJob ClusterRunner
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Trip scoring
		r.Post("/score", handler.Score)

		// Prediction retrieval
		r.Get("/predictions/{id}", handler.GetPrediction)

		// Alert review
		r.Get("/alerts", handler.ListAlerts)
		r.Get("/alerts/stats", handler.AlertStats)
		r.Post("/alerts/{id}/resolve", handler.ResolveAlert)

		// Fraud archetype management
		r.Get("/patterns", handler.ActivePatterns)
		r.Get("/patterns/all", handler.AllPatterns)
		r.Post("/patterns", handler.CreateArchetype)
		r.Post("/patterns/reload", handler.ReloadArchetypes)

		// Cluster analysis
		r.Get("/clusters", handler.GetClusters)
		r.Post("/clusters", handler.TriggerClustering)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
