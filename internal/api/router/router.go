package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/promptvideos/orchestrator/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK

		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":  status,
			"service": "videogen-api-service",
		})
	})

	// Prometheus metrics
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Initialize video handler
	videoHandler := handler.NewVideoHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		videos := v1.Group("/videos")
		{
			// POST /api/v1/videos - Submit a video generation job
			videos.POST("", videoHandler.CreateVideo)

			// GET /api/v1/videos/:job_id - Get job state and progress
			videos.GET("/:job_id", videoHandler.GetVideo)
		}
	}

	return r
}
