package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Маршрут Health-check, без аутентификации
	api.GET("/system/health", h.healthCheck)

	secured := api.Group("", APIKeyAuthMiddleware(h.cfg, h.logger))

	// Опасности. Статические маршруты раньше /:id
	hazards := secured.Group("/hazards")
	{
		hazards.POST("", h.createHazard)
		hazards.GET("", h.listHazards)
		hazards.GET("/nearby", h.nearbyHazards)
		hazards.GET("/heatmap", h.hazardHeatmap)
		hazards.GET("/stats", h.hazardStats)
		hazards.POST("/dedup", h.deduplicateHazards)
		hazards.GET("/:id", h.getHazard)
		hazards.PATCH("/:id/status", h.updateHazardStatus)
		hazards.POST("/:id/feedback", h.hazardFeedback)
		hazards.DELETE("/:id", h.deleteHazard)
	}

	alerts := secured.Group("/alerts")
	{
		alerts.POST("", h.createAlert)
		alerts.GET("", h.listAlerts)
		alerts.GET("/stats", h.alertStats)
		alerts.GET("/:id", h.getAlert)
		alerts.POST("/:id/acknowledge", h.acknowledgeAlert)
		alerts.POST("/:id/dismiss", h.dismissAlert)
		alerts.POST("/:id/cancel", h.cancelAlert)
	}

	tickets := secured.Group("/tickets")
	{
		tickets.POST("", h.createTicket)
		tickets.GET("", h.listTickets)
		tickets.GET("/overdue", h.overdueTickets)
		tickets.GET("/stats", h.ticketStats)
		tickets.GET("/:id", h.getTicket)
		tickets.PATCH("/:id/status", h.updateTicketStatus)
		tickets.POST("/:id/assign", h.assignTicket)
		tickets.POST("/:id/feedback", h.ticketFeedback)
	}

	// Маршрут для проверки местоположения
	secured.POST("/location/check", h.checkLocation)

	// Websocket для push-уведомлений
	secured.GET("/ws/alerts", h.alertStream)
}
