// Package api exposes the sync backend over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/budgetlens/sync-backend/internal/application/service"
	"github.com/budgetlens/sync-backend/internal/domain/cursor"
	"github.com/budgetlens/sync-backend/internal/domain/detail"
	"github.com/budgetlens/sync-backend/internal/infrastructure/config"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
)

// Server wires the HTTP API to the application services.
type Server struct {
	repo        storage.Repository
	syncService *service.SyncService
	cursors     *cursor.Manager
	tracker     *detail.Tracker
	cfg         config.APIConfig
	logger      *slog.Logger
}

// NewServer creates an API server.
func NewServer(
	repo storage.Repository,
	syncService *service.SyncService,
	cursors *cursor.Manager,
	cfg config.APIConfig,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		repo:        repo,
		syncService: syncService,
		cursors:     cursors,
		tracker:     detail.NewTracker(repo),
		cfg:         cfg,
		logger:      logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
	}))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.POST("/sync", s.startSync)
		api.GET("/sync/jobs", s.listSyncJobs)
		api.GET("/sync/jobs/:id", s.getSyncJob)
		api.DELETE("/sync/jobs/:id", s.cancelSyncJob)

		api.GET("/cursor/:budget", s.getCursor)
		api.POST("/cursor/:budget/reset", s.resetCursor)

		api.GET("/transactions", s.listTransactions)
		api.GET("/orders", s.listOrders)
		api.GET("/stats", s.getStats)

		api.GET("/details/:id", s.getDetailState)
		api.POST("/details/:id/reset", s.resetDetailState)
	}

	return router
}

// Run starts the HTTP server on the configured port.
func (s *Server) Run(addr string) error {
	s.logger.Info("api server listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
