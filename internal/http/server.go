// Package http provides the HTTP server, router and shared middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/courier/internal/config"
	messagingHTTP "github.com/allisson/courier/internal/messaging/http"
	"github.com/allisson/courier/internal/metrics"
)

// Server represents the HTTP server
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// Handlers groups the API handlers mounted by SetupRouter.
type Handlers struct {
	Message *messagingHTTP.MessageHandler
	Channel *messagingHTTP.ChannelHandler
	Job     *messagingHTTP.JobHandler
	Webhook *messagingHTTP.WebhookHandler
	Queue   *messagingHTTP.QueueHandler
}

// NewServer creates a new HTTP server
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the gin router with middleware and every API route.
func (s *Server) SetupRouter(
	cfg *config.Config,
	handlers Handlers,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	// Provider callbacks are not rate limited: throttling them only causes redeliveries.
	webhooks := router.Group("/v1/webhooks")
	{
		webhooks.GET("/provider", handlers.Webhook.VerifyHandler)
		webhooks.POST("/provider", handlers.Webhook.ReceiveHandler)
	}

	v1 := router.Group("/v1")
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}
	{
		v1.POST("/messages", handlers.Message.EnqueueHandler)
		v1.GET("/messages/:id", handlers.Message.GetHandler)

		v1.POST("/channels", handlers.Channel.CreateHandler)
		v1.GET("/channels", handlers.Channel.ListHandler)
		v1.GET("/channels/:id", handlers.Channel.GetHandler)

		v1.POST("/jobs", handlers.Job.CreateHandler)
		v1.GET("/jobs/:id", handlers.Job.GetHandler)
		v1.GET("/jobs/:id/items", handlers.Job.ListItemsHandler)
		v1.POST("/jobs/:id/start", handlers.Job.StartHandler)
		v1.POST("/jobs/:id/cancel", handlers.Job.CancelHandler)

		v1.GET("/queue/health", handlers.Queue.HealthHandler)
		v1.POST("/reconcile", handlers.Queue.ReconcileHandler)
	}

	s.router = router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	database := "ok"
	if s.db == nil {
		database = "error"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			database = "error"
			s.logger.Warn("readiness check failed", slog.Any("error", err))
		}
	}

	if database != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": database},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": database},
	})
}
