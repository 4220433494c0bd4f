package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainsentry/audit-be/internal/api/handler"
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
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "audit-api-service",
		})
	})

	auditHandler := handler.NewAuditHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		audits := v1.Group("/audits")
		{
			// POST /api/v1/audits - Submit a batch of sources for auditing
			audits.POST("", auditHandler.SubmitAudit)

			// GET /api/v1/audits/:job_id - Poll job status and results
			audits.GET("/:job_id", auditHandler.GetAuditStatus)
		}
	}

	return r
}
