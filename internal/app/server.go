// File: internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"live_learning_backend/internal/auth"
	"live_learning_backend/internal/config"
	"live_learning_backend/internal/content"
	"live_learning_backend/internal/filestorage"
	"live_learning_backend/internal/jobs"
	"live_learning_backend/internal/middleware"
	"live_learning_backend/internal/platform/natsbus"
	"live_learning_backend/internal/session"
	"live_learning_backend/internal/user"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server struct holds the dependencies for the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	cfg        *config.Config
	logger     *zap.Logger

	// Jobs
	contentSweepJob *jobs.ContentSweepJob
}

// NewServer creates a new instance of our application server.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	sessions *session.Registry,
	tokens auth.TokenService,
	blocklist auth.TokenBlocklist,
	authHandler *auth.Handler,
	userHandler *user.Handler,
	contentHandler *content.Handler,
	contentSweepJob *jobs.ContentSweepJob,
	events *natsbus.Bridge,
	images *filestorage.ImageStore,
) (*Server, error) {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// --- Global Middleware ---
	router.Use(middleware.ZapLogger(logger, cfg))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Location", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	tokenMW := middleware.TokenMiddleware(tokens, blocklist, logger.Named("TokenMiddleware"))
	guardMW := middleware.SessionGuard(sessions, middleware.GuardConfig{
		Wait:     cfg.SessionGuardWait,
		Redirect: cfg.PublicEntryPoint,
	}, logger.Named("SessionGuard"))

	// --- Setup Routes ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "UP",
			"message":      "Live Learning API is healthy!",
			"sessions":     sessions.Len(),
			"sharedEvents": events != nil,
		})
	})

	if images != nil {
		router.Static(images.BaseURL(), images.Root())
	}

	v1 := router.Group("/api/v1")
	authHandler.RegisterRoutes(v1, tokenMW)
	userHandler.RegisterRoutes(v1, tokenMW, guardMW)
	contentHandler.RegisterRoutes(v1, tokenMW, guardMW)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:      httpServer,
		router:          router,
		cfg:             cfg,
		logger:          logger,
		contentSweepJob: contentSweepJob,
	}, nil
}

// Router exposes the configured engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start() error {
	if s.contentSweepJob != nil {
		if err := s.contentSweepJob.SetupAndStart(); err != nil {
			s.logger.Error("Failed to setup and start content sweep job", zap.Error(err))
		}
	} else {
		s.logger.Info("Content sweep job is not configured, skipping start.")
	}

	s.logger.Info("HTTP Server starting",
		zap.String("address", s.httpServer.Addr),
		zap.String("gin_mode", s.cfg.GinMode),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Failed to start HTTP server", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP Server stopped gracefully or an error occurred")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Attempting graceful server shutdown...")
	if s.contentSweepJob != nil {
		s.contentSweepJob.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}
