package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/semmidev/snapkeep/internal/api/handler"
	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/infrastructure/logger"
	"github.com/semmidev/snapkeep/internal/usecase"
)

type Server struct {
	router *gin.Engine
	srv    *http.Server
	logger *logger.Logger
}

func NewServer(
	cfg *config.ServerConfig,
	scheduleService *usecase.ScheduleService,
	runner *usecase.Runner,
	backupRepo domain.BackupRepository,
	providers []string,
	connectors map[string]domain.Connector,
	log *logger.Logger,
) *Server {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(recovery(log))
	router.Use(requestLogger(log))

	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	backupHandler := handler.NewBackupHandler(runner, scheduleService, backupRepo)
	storageHandler := handler.NewStorageHandler(providers, connectors)

	api := router.Group("/api")

	schedules := api.Group("/schedules")
	{
		schedules.POST("", scheduleHandler.CreateSchedule)
		schedules.GET("", scheduleHandler.ListSchedules)
		schedules.GET("/:id", scheduleHandler.GetSchedule)
		schedules.PUT("/:id", scheduleHandler.UpdateSchedule)
		schedules.DELETE("/:id", scheduleHandler.DeleteSchedule)
	}

	backups := api.Group("/backups")
	{
		backups.POST("", backupHandler.CreateBackup)
		backups.GET("", backupHandler.ListBackups)
		backups.GET("/:id", backupHandler.GetBackup)
		backups.DELETE("/:id", backupHandler.DeleteBackup)
	}

	storage := api.Group("/storage")
	{
		storage.GET("", storageHandler.ListConnections)
		storage.GET("/:provider", storageHandler.GetConnection)
		storage.GET("/:provider/authorize", storageHandler.Authorize)
		storage.POST("/:provider/exchange", storageHandler.Exchange)
		storage.POST("/:provider/disconnect", storageHandler.Disconnect)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return &Server{
		router: router,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger: log,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Infof("[api] Listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
