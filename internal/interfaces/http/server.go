// Package http exposes the workflow engine and its services over a JSON API.
// It is a thin adapter that translates HTTP requests into application calls.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/erp-workflow/internal/application/service"
	"github.com/garyjia/erp-workflow/internal/application/workflow"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RequestsPerSecond and Burst size the per-user limiter on mutating routes.
	// A zero rate disables it.
	RequestsPerSecond float64
	Burst             int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "0.0.0.0",
		Port:              8080,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: 5,
		Burst:             10,
	}
}

// HealthFunc reports whether the application is healthy plus a detail payload
type HealthFunc func(ctx context.Context) (bool, interface{})

// Dependencies are the application entry points the server routes to
type Dependencies struct {
	Engine        workflow.Engine
	Definitions   service.DefinitionService
	Queries       service.QueryService
	Notifications service.NotificationService
	Health        HealthFunc
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	limiter    *userLimiter
	logger     Logger
}

// NewServer creates a new HTTP server routing to deps
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:  config,
		router:  gin.New(),
		deps:    deps,
		limiter: newUserLimiter(config.RequestsPerSecond, config.Burst),
		logger:  logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api", identityMiddleware())
	limited := s.rateLimitMiddleware()
	{
		// Definitions
		api.POST("/workflows", limited, h.CreateDefinition)
		api.GET("/workflows", h.ListDefinitions)
		api.GET("/workflows/:id", h.GetDefinition)
		api.PUT("/workflows/:id", limited, h.UpdateDefinition)

		// Transitions on an instance
		api.POST("/workflows/:id/action", limited, h.ProcessAction)
		api.POST("/workflows/:id/delegate", limited, h.Delegate)

		// Approver views
		api.GET("/workflows/approvals/pending", h.PendingApprovals)
		api.GET("/workflows/approvals/instance/:id", h.ReviewInstance)
		api.GET("/workflows/approvals/instance/:id/history.xlsx", h.ExportHistory)

		// Inbox
		api.GET("/workflows/notifications", h.ListNotifications)
		api.POST("/workflows/notifications/:id/read", limited, h.MarkNotificationRead)

		// Submission, one route per business module
		for _, kind := range entity.AllDocumentKinds() {
			api.POST(kind.Route()+"/:id/submit", limited, h.Submit(kind))
		}
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
