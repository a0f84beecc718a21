package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handler, reg *prometheus.Registry) *gin.Engine {
	r := gin.Default()
	r.Use(MetricsMiddleware(reg))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		// Tracked jobs
		v1.GET("/jobs", h.handleListJobs)
		v1.GET("/jobs/active", h.handleListActiveJobs)
		v1.POST("/jobs", h.handleRegisterJob)
		v1.GET("/jobs/:jobId", h.handleGetJob)
		v1.DELETE("/jobs/:jobId", h.handleCancelJob)
		v1.GET("/jobs/:jobId/result", h.handleGetJobResult)

		// Suggestions and submission
		v1.POST("/suggestions", h.handleAnalyze)
		v1.POST("/suggestions/primary/submit", h.handleSubmitPrimary)
		v1.GET("/operations/:opId", h.handleGetOperation)

		v1.POST("/normalize", h.handleNormalize)
		v1.GET("/events", h.handleEvents)
	}
	return r
}
