package router

import (
	"github.com/gin-gonic/gin"

	"claimsqa/internal/handler"
	"claimsqa/internal/middleware"
	"claimsqa/internal/observability"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	claimsH *handler.ClaimsHandler,
	healthH *handler.HealthHandler,
	metrics *observability.Metrics,
	allowedOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.Telemetry(metrics))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	r.GET("/", claimsH.Root)
	r.POST("/extract", claimsH.Extract)
	r.GET("/extract_history", claimsH.History)
	r.GET("/extract_history/export.csv", claimsH.ExportHistoryCSV)
	r.POST("/ask", claimsH.Ask)

	documents := r.Group("/documents")
	documents.GET("/:id", claimsH.GetDocument)
	documents.GET("/:id/export.xlsx", claimsH.ExportWorkbook)
	documents.GET("/:id/searchable.pdf", claimsH.DownloadArtifact)

	return r
}
