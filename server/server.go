// Package server wires the HTTP handlers behind the middleware stack and
// manages the listener lifecycle and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/healthpost-api/config"
	"github.com/giygas/healthpost-api/handlers"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/metrics"
)

const (
	// 3 tokens per second, max 1000 tokens
	rateLimitRate     = 3
	rateLimitCapacity = 1000

	profilingAddr = "localhost:6060"
)

// Server represents the HTTP server
type Server struct {
	server    *http.Server
	profiling *http.Server
	router    chi.Router
	handler   *handlers.HTTPHandlerImpl
	limiter   *RateLimiter
	config    *config.Config

	// drainWait is how long Shutdown waits for hijacked connections
	drainWait time.Duration
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, h *handlers.HTTPHandlerImpl) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.Address + ":" + cfg.Port,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:    router,
		handler:   h,
		limiter:   NewRateLimiter(rateLimitRate, rateLimitCapacity),
		config:    cfg,
		drainWait: 2 * time.Second,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the root handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.Env == config.EnvProduction {
		// Before RealIPMiddleware to see the original RemoteAddr
		s.router.Use(BlockDirectAccessMiddleware)
	}
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.DefaultLoggingService.Logger))
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.limiter.Middleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(metrics.Metrics)
	s.router.Use(middleware.Compress(5, "application/json"))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/clinical", func(r chi.Router) {
			r.Post("/classify", s.handler.ClassifyAssessment)
			r.Post("/waz", s.handler.EstimateWAZ)
		})
		r.Post("/patients/{patientId}/encounters", s.handler.RecordEncounter)

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/lots", s.handler.ServeLots)
			r.Get("/alerts", s.handler.ServeAlerts)
			r.Get("/export.xlsx", s.handler.ExportStock)
			r.Post("/issues", s.handler.IssueStock)
			r.Post("/receipts", s.handler.ReceiveStock)
			r.Post("/imports", s.handler.ImportStock)

			r.Post("/requests", s.handler.SubmitRequest)
			r.Get("/requests/{id}", s.handler.GetRequest)
			r.Post("/requests/{id}/approve", s.handler.ApproveRequest)
			r.Post("/requests/{id}/reject", s.handler.RejectRequest)
		})

		r.Get("/watch", s.handler.Watch)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.handler.RespondWithError(w, http.StatusNotFound, "no such endpoint")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.handler.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}
	s.limiter.StartCleanup(30 * time.Minute)

	logging.Info("Starting server", "address", s.server.Addr, "env", s.config.Env.String())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.limiter.Stop()

	if s.profiling != nil {
		if err := s.profiling.Shutdown(ctx); err != nil {
			logging.Warn("Profiling server shutdown error", "error", err)
		}
	}

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	// Change feeds are hijacked and not tracked by Shutdown
	if s.drainWait > 0 {
		logging.Info("Waiting for ongoing requests to complete...")
		select {
		case <-time.After(s.drainWait):
		case <-ctx.Done():
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s.profiling = &http.Server{Addr: profilingAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logging.Info("Profiling server started", "url", "http://"+profilingAddr+"/debug/pprof/")
		if err := s.profiling.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
