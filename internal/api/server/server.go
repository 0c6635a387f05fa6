package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/myeurocoins/coin-catalog/internal/adapter"
	"github.com/myeurocoins/coin-catalog/internal/api/middleware"
	"github.com/myeurocoins/coin-catalog/internal/api/rest"
	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/catalog"
	"github.com/myeurocoins/coin-catalog/internal/groups"
	"github.com/myeurocoins/coin-catalog/internal/importer"
	"github.com/myeurocoins/coin-catalog/internal/ledger"
	"github.com/myeurocoins/coin-catalog/internal/logger"
	"github.com/myeurocoins/coin-catalog/internal/store"
	"github.com/myeurocoins/coin-catalog/internal/view"
)

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CacheTTL     time.Duration
	Auth         middleware.AuthConfig
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	store      store.Store
	httpServer *http.Server
}

// New creates a new API server
func New(cfg Config, store store.Store) *Server {
	return &Server{
		config: cfg,
		store:  store,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Setup middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())

	// Assemble the services around a single shared query cache
	clock := adapter.NewClock()
	cacheSvc := cache.New(clock, s.config.CacheTTL)

	catalogSvc := catalog.NewService(s.store, cacheSvc)
	ledgerSvc := ledger.NewService(s.store, cacheSvc, clock)
	directory := groups.NewDirectory(s.store, cacheSvc)
	composer := view.NewComposer(s.store, s.store, ledgerSvc, cacheSvc)
	importerSvc := importer.NewService(s.store, ledgerSvc, cacheSvc, clock)

	// Create REST handler
	restHandler := rest.NewHandler(
		s.config.Debug,
		catalogSvc,
		ledgerSvc,
		directory,
		composer,
		importerSvc,
		s.store,
		cacheSvc,
	)

	// Setup REST routes
	rest.SetupRoutes(router, restHandler, s.config.Auth)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
