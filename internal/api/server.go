package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/martijn/pgvault/internal/api/handler"
	"github.com/martijn/pgvault/internal/api/middleware"
	"github.com/martijn/pgvault/internal/core/service"
	"github.com/martijn/pgvault/pkg/config"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	config *config.Config
	logger *zap.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	authService *service.AuthService,
	databaseService *service.DatabaseService,
	backupService *service.BackupService,
	restoreService *service.RestoreService,
	scheduleService *service.ScheduleService,
	retentionService *service.RetentionService,
	logger *zap.Logger,
) *Server {
	// Set Gin mode
	if !cfg.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandlerMiddleware())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.MetricsMiddleware())

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	databaseHandler := handler.NewDatabaseHandler(databaseService)
	backupHandler := handler.NewBackupHandler(backupService)
	storageHandler := handler.NewStorageHandler(backupService)
	restoreHandler := handler.NewRestoreHandler(restoreService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	cleanupHandler := handler.NewCleanupHandler(retentionService)

	// Public routes (no auth required)
	auth := router.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes (auth required)
	authMiddleware := middleware.AuthMiddleware(authService)

	// Databases
	databases := router.Group("/databases")
	databases.Use(authMiddleware)
	{
		databases.POST("", databaseHandler.CreateDatabase)
		databases.GET("", databaseHandler.ListDatabases)
		databases.GET("/:id", databaseHandler.GetDatabase)
		databases.PUT("/:id", databaseHandler.UpdateDatabase)
		databases.DELETE("/:id", databaseHandler.DeleteDatabase)
		databases.POST("/:id/test", databaseHandler.TestConnection)
	}

	// Backups
	backups := router.Group("/backups")
	backups.Use(authMiddleware)
	{
		backups.POST("", backupHandler.CreateBackup)
		backups.GET("", backupHandler.ListBackups)
		backups.GET("/:id", backupHandler.GetBackup)
		backups.DELETE("/:id", backupHandler.DeleteBackup)
		backups.GET("/:id/download", backupHandler.DownloadBackup)
		backups.POST("/:id/upload", backupHandler.UploadBackup)
	}

	// Remote storage inventory
	router.GET("/storage/objects", authMiddleware, storageHandler.ListObjects)

	// Restores
	restores := router.Group("/restores")
	restores.Use(authMiddleware)
	{
		restores.POST("", restoreHandler.CreateRestore)
		restores.POST("/authorize", restoreHandler.Authorize)
		restores.GET("", restoreHandler.ListRestores)
		restores.GET("/:id", restoreHandler.GetRestore)
	}

	// Schedules
	schedules := router.Group("/schedules")
	schedules.Use(authMiddleware)
	{
		schedules.POST("", scheduleHandler.CreateSchedule)
		schedules.GET("", scheduleHandler.ListSchedules)
		schedules.GET("/:id", scheduleHandler.GetSchedule)
		schedules.PUT("/:id", scheduleHandler.UpdateSchedule)
		schedules.DELETE("/:id", scheduleHandler.DeleteSchedule)
		schedules.POST("/:id/pause", scheduleHandler.PauseSchedule)
		schedules.POST("/:id/resume", scheduleHandler.ResumeSchedule)
		schedules.POST("/:id/run", scheduleHandler.RunSchedule)
	}

	// Retention cleanup
	router.POST("/cleanup", authMiddleware, cleanupHandler.Cleanup)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	server := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)

	// No write timeout: artifact downloads may stream for a long time.
	s.srv = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Start with or without SSL
	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.logger.Info("starting HTTPS server", zap.String("addr", addr))
		return s.srv.ListenAndServeTLS(s.config.SSLCert, s.config.SSLKey)
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
