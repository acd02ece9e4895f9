package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, prefs *handlers.PreferenceHandler, predictions *handlers.PredictionHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/read-all", handler.MarkAllRead)

		group.GET("/preferences", prefs.Get)
		group.PUT("/preferences", prefs.Update)
		group.GET("/predictions", predictions.List)

		group.POST("/:id/read", handler.MarkRead)
		group.POST("/:id/unread", handler.MarkUnread)
		group.POST("/:id/opened", handler.Opened)
		group.DELETE("/:id", handler.Delete)
	}
}

func registerDeviceRoutes(api *gin.RouterGroup, handler *handlers.DeviceHandler) {
	group := api.Group("/devices")
	{
		group.POST("", handler.Register)
		group.DELETE("/:token", handler.Unregister)
	}
}

func registerNPSRoutes(api *gin.RouterGroup, handler *handlers.NPSHandler) {
	api.POST("/nps/responses/:id", handler.Respond)
}
