package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	incidents := api.Group("/incidents")
	{
		// Публичные маршруты отчетов
		incidents.POST("/report", h.reportIncident)
		incidents.POST("/check-duplicates", h.checkDuplicates)
		incidents.POST("/:id/link", h.linkReport)
		incidents.GET("", h.listIncidents)
		incidents.GET("/stats", h.getStats)
		incidents.GET("/priority-queue", h.priorityQueue)
		incidents.GET("/:id", h.getIncident)
		incidents.PATCH("/:id/upvote", h.upvoteIncident)

		// Маршруты диспетчера/админа, требуют API-ключ
		protected := incidents.Group("")
		protected.Use(APIKeyAuthMiddleware(h.cfg, h.logger))
		{
			protected.PATCH("/:id/verify", h.verifyIncident)
			protected.PATCH("/:id/status", h.updateStatus)
			protected.DELETE("/:id", h.deleteIncident)
		}
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
