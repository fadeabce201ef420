package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/barnabee/barnabee/internal/application/usecase"
	"github.com/barnabee/barnabee/internal/domain/repository"
	"github.com/barnabee/barnabee/internal/infrastructure/monitoring"
	"github.com/barnabee/barnabee/internal/interfaces/http/handlers"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server is the HTTP surface: request processing, audit reads, health and
// metrics.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds the listen address and gin mode.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// NewServer builds the router and handlers.
func NewServer(cfg Config, pipeline *usecase.ProcessRequestUseCase, audit repository.AuditRepository, monitor *monitoring.Monitor, logger *zap.Logger) *Server {
	if cfg.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	processHandler := handlers.NewProcessHandler(pipeline, logger)
	auditHandler := handlers.NewAuditHandler(audit, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})
	router.GET("/metrics", gin.WrapH(monitor.PrometheusHandler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/process", processHandler.Process)
		v1.GET("/audit/:conversation_id", auditHandler.ByConversation)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
