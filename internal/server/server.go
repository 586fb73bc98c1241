// Package server provides the HTTP server and routing for the revcast engine.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mhalford/revcast/internal/config"
	"github.com/mhalford/revcast/internal/database"
	"github.com/mhalford/revcast/internal/events"
	"github.com/mhalford/revcast/internal/modules/backtest"
	"github.com/mhalford/revcast/internal/modules/confidence"
	"github.com/mhalford/revcast/internal/modules/forecast"
	"github.com/mhalford/revcast/internal/modules/models"
	"github.com/mhalford/revcast/internal/modules/pipeline"
	"github.com/mhalford/revcast/internal/modules/renewals"
	"github.com/mhalford/revcast/internal/modules/waterfall"
	"github.com/mhalford/revcast/internal/runner"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Warehouse *database.Warehouse
	Config    *config.Config
	Runner    *runner.Runner
	EventBus  *events.Bus
	Port      int
	DevMode   bool
}

// Server represents the HTTP server over the warehouse marts.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	warehouse *database.Warehouse
	cfg       *config.Config
	runner    *runner.Runner
	eventBus  *events.Bus

	forecastRepo   *forecast.Repository
	waterfallRepo  *waterfall.Repository
	confidenceRepo *confidence.Repository
	renewalsRepo   *renewals.Repository
	pipelineRepo   *pipeline.Repository
	backtestRepo   *backtest.Repository
	selectionRepo  *models.SelectionRepository
	runLogRepo     *runner.RunLogRepository
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	s := &Server{
		router:         chi.NewRouter(),
		log:            log,
		warehouse:      cfg.Warehouse,
		cfg:            cfg.Config,
		runner:         cfg.Runner,
		eventBus:       cfg.EventBus,
		forecastRepo:   forecast.NewRepository(cfg.Warehouse.Forecast.Conn(), cfg.Log),
		waterfallRepo:  waterfall.NewRepository(cfg.Warehouse.Forecast.Conn(), cfg.Log),
		confidenceRepo: confidence.NewRepository(cfg.Warehouse.Forecast.Conn(), cfg.Log),
		renewalsRepo:   renewals.NewRepository(cfg.Warehouse.Forecast.Conn(), cfg.Log),
		pipelineRepo:   pipeline.NewRepository(cfg.Warehouse.Facts.Conn(), cfg.Warehouse.Forecast.Conn(), cfg.Log),
		backtestRepo:   backtest.NewRepository(cfg.Warehouse.Models.Conn(), cfg.Log),
		selectionRepo:  models.NewSelectionRepository(cfg.Warehouse.Models.Conn(), cfg.Log),
		runLogRepo:     runner.NewRunLogRepository(cfg.Warehouse.Forecast.Conn(), cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config),
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
		// Event stream (SSE) before the mart routes
		eventsStreamHandler := NewEventsStreamHandler(s.eventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		// Forecast marts
		r.Get("/forecast", s.handleForecast)
		r.Get("/waterfall", s.handleWaterfall)
		r.Get("/reconciliation", s.handleReconciliation)
		r.Get("/renewals", s.handleRenewals)
		r.Get("/pipeline", s.handlePipeline)
		r.Get("/confidence", s.handleConfidence)
		r.Get("/watchlist", s.handleWatchlist)
		r.Get("/movers", s.handleMovers)
		r.Get("/summary", s.handleSummary)
		r.Get("/coverage", s.handleCoverage)

		// Model governance
		r.Route("/models", func(r chi.Router) {
			r.Get("/metrics", s.handleModelMetrics)
			r.Get("/calibration", s.handleModelCalibration)
			r.Get("/costcurves", s.handleModelCostCurves)
			r.Get("/selection", s.handleModelSelection)
		})

		// Pipeline runs
		r.Get("/runs", s.handleListRuns)
		r.Post("/runs", s.handleTriggerRun)

		// System monitoring
		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleSystemHealth)
			r.Get("/info", s.systemHandlers.HandleSystemInfo)
		})
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "revcast",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(s.log, w, status, data)
}

func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]interface{}{"error": msg})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
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
