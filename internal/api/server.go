package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openclinic/arpa/internal/arpa"
	"github.com/openclinic/arpa/internal/domain"
	"github.com/openclinic/arpa/internal/screening"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, engine *arpa.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, screener *screening.Engine, version string) *Server {
	handler := NewHandler(engine, repo, cache, bus, screener, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes
	router.Route("/", func(r chi.Router) {
		r.Use(ActorMiddleware)

		// High-risk listing before the patient param route so chi
		// matches the static segment first
		r.Get("/patients/high-risk", handler.ListHighRisk)

		// Scoring pipeline
		r.Post("/patients/{id}/risk-score", handler.CalculateRiskScore)
		r.Get("/patients/{id}/risk-score", handler.GetCurrentScore)
		r.Get("/patients/{id}/risk-score/history", handler.GetScoreHistory)

		// Screening rule management
		r.Get("/screening/rules", handler.ListScreeningRules)
		r.Get("/screening/rules/{id}", handler.GetScreeningRule)
		r.Post("/screening/rules", handler.CreateScreeningRule)
		r.Delete("/screening/rules/{id}", handler.DeleteScreeningRule)
		r.Post("/screening/rules/reload", handler.ReloadScreeningRules)
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
