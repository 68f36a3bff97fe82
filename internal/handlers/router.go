package handlers

import (
	"tasklife/internal/config"
	"tasklife/internal/middleware"
	"tasklife/internal/monitoring"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter assembles the HTTP surface: the lifecycle operations plus
// health and metrics. Everything under /api requires an authenticated
// caller.
func NewRouter(cfg *config.Config, taskHandler *TaskHandler, health *monitoring.HealthChecker) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.Default())
	router.Use(monitoring.MetricsMiddleware())

	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit).Middleware())
	}

	router.GET("/health", health.Handler)
	router.GET("/metrics", monitoring.MetricsHandler)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		api.POST("/tasks", taskHandler.CreateTask)
		api.POST("/tasks/recurring", taskHandler.CreateRecurringTask)
		api.POST("/tasks/:id/transitions", taskHandler.ApplyTransition)
		api.DELETE("/tasks/:id", taskHandler.ArchiveTask)
		api.GET("/tasks/:id/rejections", taskHandler.ListRejections)
		api.GET("/groups/:group_id/tasks", taskHandler.ListGroupTasks)
	}

	return router
}
