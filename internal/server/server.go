package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"huntcall/config"
	"huntcall/internal/handler"
	"huntcall/internal/middleware"
	redisclient "huntcall/internal/redis"
	"huntcall/internal/services"
	"huntcall/internal/transport/httpdto"
	"huntcall/internal/websocket"
	"huntcall/pkg/database"
	"huntcall/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Calls     *handler.CallHandler
	Debug     *handler.DebugHandler
	WebSocket *websocket.Handler
}

// Dependencies are the backing stores checked by /health.
type Dependencies struct {
	DB    *sql.DB
	Redis *goredis.Client
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, deps Dependencies) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := checkHealth(c.Request.Context(), deps); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if handlers.WebSocket != nil {
		s.engine.GET("/v1/ws/calls", handlers.WebSocket.Connect)
	}

	hunts := s.engine.Group("/v1/hunts", middleware.AuthMiddleware(authService))
	{
		hunts.GET("/:hunt/calls", handlers.Calls.ListByHunt)
		hunts.GET("/:hunt/calls/:call", handlers.Calls.GetByID)
	}

	admin := s.engine.Group("/v1/admin", middleware.AuthMiddleware(authService), middleware.AdminMiddleware())
	{
		admin.GET("/calls/debug", handlers.Debug.Dump)
		admin.POST("/calls/debug/archive", handlers.Debug.Archive)
	}
}

func checkHealth(ctx context.Context, deps Dependencies) error {
	if deps.DB != nil {
		if err := database.HealthCheck(ctx, deps.DB); err != nil {
			return err
		}
	}
	if deps.Redis != nil {
		if err := redisclient.Ping(ctx, deps.Redis); err != nil {
			return err
		}
	}
	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if s.logger != nil {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
		return err
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
