package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/handlers"
	"github.com/fitos/notify/internal/middleware"
)

func registerJobRoutes(api *gin.RouterGroup, handler *handlers.JobHandler) {
	group := api.Group("/jobs", middleware.RequireService())
	{
		group.POST("/predict-send-times", handler.PredictSendTimes)
		group.POST("/dispatch", handler.Dispatch)
		group.POST("/reminders/scan", handler.ScanReminders)
		group.POST("/checkins", handler.Checkins)
		group.POST("/pod-digests", handler.PodDigests)
		group.POST("/nps", handler.NPS)
		group.POST("/review-requests", handler.ReviewRequests)
	}
}
