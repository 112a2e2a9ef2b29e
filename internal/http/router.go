package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(cfg.Logger))
	router.Use(gin.Recovery())
	if cfg.HTTPMetrics != nil {
		router.Use(RequestMetrics(cfg.HTTPMetrics))
	}

	health := NewHealthController(cfg.HealthChecks, cfg.Version)
	syncJobs := NewSyncJobsController(cfg.Sync, cfg.Jobs, cfg.Events, cfg.Cache)
	checkpoints := NewCheckpointsController(cfg.Checkpoints, cfg.Sync, cfg.Cache)
	records := NewRecordsController(cfg.Records, cfg.Cache)
	cacheController := NewCacheController(cfg.Cache)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	// Sync job endpoints
	router.POST("/sync-jobs", syncJobs.StartSync)
	router.GET("/sync-jobs", syncJobs.ListJobs)
	router.GET("/sync-jobs/:id", syncJobs.GetJob)
	router.GET("/sync-jobs/:id/events", syncJobs.ListEvents)
	router.POST("/sync-jobs/:id/cancel", syncJobs.CancelJob)

	// Checkpoint endpoints
	router.GET("/checkpoint/:resourceType", checkpoints.GetCheckpoint)
	router.POST("/checkpoint/:resourceType/resume", checkpoints.Resume)

	// Normalized store
	router.GET("/orders", records.ListOrders)
	router.GET("/products", records.ListProducts)

	router.GET("/cache/metrics", cacheController.GetMetrics)

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient, cfg.EventRetentionDays)
		router.GET("/tasks/types", tasksController.ListTaskTypes)
		router.GET("/tasks/:id", tasksController.GetTaskStatus)
		router.POST("/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
