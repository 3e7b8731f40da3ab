// Package api assembles the HTTP façade over the deal graph.
package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"dealgraph/pkg/api/alerts"
	"dealgraph/pkg/api/deals"
	"dealgraph/pkg/api/filings"
	"dealgraph/pkg/core/pipeline"
	"dealgraph/pkg/core/store"
)

// SetupRouter wires every handler group onto one gin engine.
func SetupRouter(st store.Store, orch *pipeline.Orchestrator) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "dealgraph-api"})
	})

	dealsHandler := deals.New(st)
	dealsHandler.Register(r.Group("/deals"))

	filings.New(st, orch).Register(r.Group("/filings"))
	alerts.New(st, orch).Register(r.Group("/alerts"))

	apiGroup := r.Group("/api")
	dealsHandler.RegisterSearch(apiGroup)
	apiGroup.POST("/pipeline/run", func(c *gin.Context) {
		stats, err := orch.RunPipeline(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "pipeline run failed", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	return r
}

// corsMiddleware allows browser dashboards to call the API. Origins
// come from ALLOWED_ORIGINS (comma-separated); empty means any.
func corsMiddleware() gin.HandlerFunc {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
