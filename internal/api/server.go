// Package api provides the HTTP server and routing.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/materials-consortia/optimade-gateway/internal/api/handlers"
	"github.com/materials-consortia/optimade-gateway/internal/config"
	"github.com/materials-consortia/optimade-gateway/internal/metrics"
	"github.com/materials-consortia/optimade-gateway/internal/query"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/upstream"
)

// Server represents the HTTP server.
type Server struct {
	config   *config.Config
	registry *registry.Registry
	router   chi.Router
	server   *http.Server
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewServer creates a new HTTP server wiring the registry, the upstream
// client and the query orchestrator behind the route table.
func NewServer(cfg *config.Config, reg *registry.Registry, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:   cfg,
		registry: reg,
		logger:   logger,
		metrics:  metrics.New(),
	}

	client := upstream.NewClient()
	orch := query.NewOrchestrator(reg, client, query.Config{
		PerDBTimeout:   cfg.Query.PerDBTimeout(),
		GatewayTimeout: cfg.Query.GatewayTimeout(),
		MaxConcurrent:  cfg.Query.MaxConcurrentUpstreams,
		BaseURL:        cfg.Server.BaseURL,
	}, logger, s.metrics)

	h := handlers.New(reg, orch, client, s.metrics, logger, handlers.Config{
		PageLimit:     cfg.Query.PageLimit,
		PerDBTimeout:  cfg.Query.PerDBTimeout(),
		SearchTimeout: cfg.Query.SearchTimeout(),
		BaseURL:       cfg.Server.BaseURL,
		Version:       version,
	})

	s.setupRouter(h)
	return s
}

// Metrics returns the metrics instance for recording custom metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter(h *handlers.Handler) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// Health and service metadata
	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	r.Get("/info", h.GetInfo)
	r.Get("/links", h.GetLinks)
	r.Get("/versions", h.GetVersions)

	// Metrics endpoint
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	// Upstream databases
	r.Get("/databases", h.ListDatabases)
	r.Post("/databases", h.RegisterDatabase)
	r.Get("/databases/{databaseID}", h.GetDatabase)

	// Gateways
	r.Get("/gateways", h.ListGateways)
	r.Post("/gateways", h.CreateGateway)
	r.Get("/gateways/{gatewayID}", h.GetGateway)
	r.Get("/gateways/{gatewayID}/info", h.GetGatewayInfo)
	r.Get("/gateways/{gatewayID}/links", h.GetGatewayLinks)
	r.Get("/gateways/{gatewayID}/versions", h.GetGatewayVersions)
	r.Get("/gateways/{gatewayID}/structures", h.GetStructures)
	r.Get("/gateways/{gatewayID}/structures/{databaseID}/{entryID}", h.GetStructure)
	r.Post("/gateways/{gatewayID}/queries", h.CreateQuery)

	// Queries
	r.Get("/queries", h.ListQueries)
	r.Get("/queries/{queryID}", h.GetQuery)

	// Direct search
	r.Get("/search", h.Search)

	// API documentation
	if s.config.Server.DocsEnabled {
		r.Get("/docs", handleSwaggerUI)
		r.Get("/openapi.yaml", handleOpenAPISpec)
	}

	s.router = r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	s.logger.Info("starting server", slog.String("address", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the HTTP router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Address returns the server address.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s", s.config.Address())
}
