// Package server provides the HTTP server and routing for the vault.
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

	"github.com/aristath/sentinel-vault/internal/access"
	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/di"
	allocationhandlers "github.com/aristath/sentinel-vault/internal/modules/allocation/handlers"
	feeshandlers "github.com/aristath/sentinel-vault/internal/modules/fees/handlers"
	rebalancinghandlers "github.com/aristath/sentinel-vault/internal/modules/rebalancing/handlers"
	vaulthandlers "github.com/aristath/sentinel-vault/internal/modules/vault/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Version   string
	Container *di.Container // DI container with all services
	Jobs      *di.JobInstances
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	version        string
	db             *database.DB
	container      *di.Container
	access         *access.Controller
	systemHandlers *SystemHandlers
	eventsHandler  *EventsWSHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	jobs := cfg.Jobs
	if jobs == nil {
		jobs = &di.JobInstances{}
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       log,
		port:      cfg.Port,
		version:   cfg.Version,
		db:        cfg.Container.DB,
		container: cfg.Container,
		access:    cfg.Container.Access,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Container.DB,
			cfg.DataDir,
			cfg.Version,
			jobs.All(),
			cfg.Container.Scheduler,
			backupLister(cfg.Container),
		),
		eventsHandler: NewEventsWSHandler(cfg.Container.EventBus, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// backupLister avoids storing a typed nil in the interface
func backupLister(c *di.Container) BackupLister {
	if c.BackupService == nil {
		return nil
	}
	return c.BackupService
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", access.CallerHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(devMode bool) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived; kept outside the timeout and compression group
		r.Get("/events/ws", s.eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !devMode {
				r.Use(middleware.Compress(5))
			}

			allocationhandlers.NewHandler(s.container.Ledger, s.log).
				RegisterRoutes(r, s.access.RequireAdmin)
			rebalancinghandlers.NewHandler(s.container.Engine, s.container.RebalancingRepo, s.log).
				RegisterRoutes(r, s.access.RequireAdmin)
			feeshandlers.NewHandler(s.container.Accrual, s.log).
				RegisterRoutes(r, s.access.RequireAdmin)
			vaulthandlers.NewHandler(s.container.Vault, s.log).
				RegisterRoutes(r, s.access.RequireCaller, s.access.RequireAdmin)

			s.systemHandlers.RegisterRoutes(r, s.access.RequireAdmin)
		})
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Str("version", s.version).Msg("Starting HTTP server")
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
