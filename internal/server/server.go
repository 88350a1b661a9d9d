// Package server exposes the water balance core over HTTP: facility CRUD,
// monthly close, alerts, and constants, plus system status and a
// websocket alert stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/alerts"
	"github.com/aristath/waterbalance/internal/config"
	"github.com/aristath/waterbalance/internal/constants"
	"github.com/aristath/waterbalance/internal/database"
	"github.com/aristath/waterbalance/internal/facility"
	"github.com/aristath/waterbalance/internal/history"
	"github.com/aristath/waterbalance/internal/orchestrator"
)

// Config holds server configuration
type Config struct {
	Port         int
	Log          zerolog.Logger
	DB           *database.DB
	Facilities   *facility.Service
	Orchestrator *orchestrator.Orchestrator
	AlertsRepo   *alerts.Repository
	Evaluator    *alerts.Evaluator
	Constants    *constants.Store
	History      *history.Store
	Config       *config.Config
	DevMode      bool
}

// Server represents the HTTP server
type Server struct {
	router       *chi.Mux
	server       *http.Server
	log          zerolog.Logger
	db           *database.DB
	facilities   *facility.Service
	orchestrator *orchestrator.Orchestrator
	alertsRepo   *alerts.Repository
	evaluator    *alerts.Evaluator
	constants    *constants.Store
	history      *history.Store
	cfg          *config.Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		db:           cfg.DB,
		facilities:   cfg.Facilities,
		orchestrator: cfg.Orchestrator,
		alertsRepo:   cfg.AlertsRepo,
		evaluator:    cfg.Evaluator,
		constants:    cfg.Constants,
		history:      cfg.History,
		cfg:          cfg.Config,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})

		s.setupFacilityRoutes(r)
		s.setupBalanceRoutes(r)
		s.setupAlertRoutes(r)
		s.setupConstantRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
