// Package api serves pair analytics, backtests and resampled bars over HTTP.
package api

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pairs-systemv1/config"
	"pairs-systemv1/internal/backtest"
	"pairs-systemv1/internal/logger"
	"pairs-systemv1/internal/model"
	"pairs-systemv1/internal/pairs"
)

// requestIDHeader carries the request ID in both directions.
const requestIDHeader = "X-Request-ID"

// Defaults fill in query parameters the client leaves out.
type Defaults struct {
	Timeframe       model.Timeframe
	Window          int
	HedgeMinSamples int
	ADFMinSamples   int
	Backtest        backtest.Params
}

// DefaultsFromConfig takes the analytics defaults from the environment config.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		Timeframe:       model.TF1s,
		Window:          cfg.ZScoreWindow,
		HedgeMinSamples: cfg.HedgeMinSamples,
		ADFMinSamples:   cfg.ADFMinSamples,
		Backtest: backtest.Params{
			EntryThreshold: cfg.EntryThreshold,
			ExitThreshold:  cfg.ExitThreshold,
			PositionSize:   cfg.PositionSize,
		},
	}
}

// Options configures a Server.
type Options struct {
	Addr     string
	Service  string        // reported by the health endpoints
	Timeout  time.Duration // per-request deadline; 0 disables it
	Defaults Defaults
}

// Server is the HTTP front of the pair analytics service.
type Server struct {
	router *chi.Mux
	server *http.Server

	svc      *pairs.Service
	bars     Store
	service  string
	defaults Defaults
	now      func() time.Time
}

// Store is the read side the raw data routes serve from.
type Store interface {
	model.BarReader
	model.SymbolReader
}

// NewServer wires the routes. bars serves /bars and /symbols and is normally
// the same reader svc analyzes.
func NewServer(svc *pairs.Service, bars Store, opts Options) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		svc:      svc,
		bars:     bars,
		service:  opts.Service,
		defaults: opts.Defaults,
		now:      time.Now,
	}
	if s.service == "" {
		s.service = "pairs-api"
	}

	s.setupMiddleware(opts.Timeout)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(timeout time.Duration) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestID)
	s.router.Use(accessLog)
	if timeout > 0 {
		s.router.Use(middleware.Timeout(timeout))
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleHealth)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/analytics/pairs", s.handleAnalytics)
	s.router.Get("/backtest/pairs", s.handleBacktest)
	s.router.Get("/bars/{timeframe}", s.handleBars)
	s.router.Get("/symbols", s.handleSymbols)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[api] listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestID reuses the caller's X-Request-ID or mints one, and stores it as
// the trace ID for downstream log lines.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = logger.NewTraceID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.Info("http request",
			append(logger.LogWithTrace(r.Context()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)...)
	})
}
