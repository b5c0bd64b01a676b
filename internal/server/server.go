// Package server provides the HTTP API for the paper trading simulator.
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

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/modules/calendar"
	"github.com/aristath/papertrader/internal/modules/ledger"
	"github.com/aristath/papertrader/internal/modules/monitor"
	"github.com/aristath/papertrader/internal/modules/scanner"
)

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	DataDir string

	Ledger   *ledger.Service
	Scanner  *scanner.Service
	Monitor  *monitor.Scheduler
	Calendar *calendar.Calendar
	Quotes   domain.QuoteSource
	Clock    domain.Clock
}

// Server is the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	handlers       *Handlers
	systemHandlers *SystemHandlers
}

// New creates the HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		handlers:       NewHandlers(cfg.Ledger, cfg.Scanner, cfg.Monitor, cfg.Calendar, cfg.Quotes, cfg.Clock, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.DataDir, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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
	s.router.Get("/health", s.handlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/portfolio", s.handlers.HandleGetPortfolio)
		r.Post("/portfolio/reset", s.handlers.HandleReset)
		r.Get("/portfolio/snapshots", s.handlers.HandleGetSnapshots)

		r.Get("/holdings", s.handlers.HandleGetHoldings)
		r.Put("/holdings/{symbol}/thresholds", s.handlers.HandleSetThresholds)

		r.Get("/trades", s.handlers.HandleGetTrades)
		r.Post("/trades/buy", s.handlers.HandleBuy)
		r.Post("/trades/sell", s.handlers.HandleSell)

		r.Get("/alerts", s.handlers.HandleGetAlerts)
		r.Post("/alerts/{id}/read", s.handlers.HandleMarkAlertRead)
		r.Post("/alerts/read-all", s.handlers.HandleMarkAllAlertsRead)

		r.Get("/scan", s.handlers.HandleScan)
		r.Get("/battle-plan/{symbol}", s.handlers.HandleBattlePlan)

		r.Get("/market/status", s.handlers.HandleMarketStatus)
		r.Get("/monitor/status", s.handlers.HandleMonitorStatus)

		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)
	})
}

// Start runs the HTTP server until Shutdown
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
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
