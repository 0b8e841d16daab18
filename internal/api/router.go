package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all routes for the memory service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/health", api.HealthHandler)

	v1 := router.Group("/api/v1")

	memory := v1.Group("/memory")
	{
		memory.POST("/facts", api.AddFactHandler)
		memory.GET("/facts/relevant", api.GetRelevantHandler)
		memory.GET("/facts/count", api.CountFactsHandler)
		memory.POST("/maintenance", api.MaintenanceHandler)
	}

	history := v1.Group("/history")
	{
		history.POST("/:chat_id", api.AppendHistoryHandler)
		history.GET("/:chat_id", api.GetHistoryHandler)
	}

	v1.GET("/keys/stats", api.KeyStatsHandler)
}
