package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/response"
)

// JobServices groups the pipeline services the job endpoints trigger.
type JobServices struct {
	Predictor      *services.SendTimePredictor
	Dispatcher     *services.PushDispatcher
	Reminders      *services.ReminderScanner
	Checkins       *services.CheckinBatcher
	PodDigests     *services.PodDigestBatcher
	NPS            *services.NPSBatcher
	ReviewRequests *services.ReviewRequestBatcher
}

// JobHandler exposes the pipeline jobs to the platform scheduler and to
// internal callers holding the service-role key. Per-item failures come back
// in the result's errors list with a 200.
type JobHandler struct {
	svc JobServices
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(svc JobServices) *JobHandler {
	return &JobHandler{svc: svc}
}

// PredictSendTimes recomputes send-time predictions for one user or for all
// recently active users.
func (h *JobHandler) PredictSendTimes(c *gin.Context) {
	var req services.PredictRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.svc.Predictor.Predict(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Dispatch sends one push notification subject to the user's policy.
func (h *JobHandler) Dispatch(c *gin.Context) {
	var req services.DispatchRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.svc.Dispatcher.Dispatch(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ScanReminders queues the 60- and 15-minute appointment reminders due now.
func (h *JobHandler) ScanReminders(c *gin.Context) {
	result, err := h.svc.Reminders.Scan(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Checkins queues the weekly check-in prompts.
func (h *JobHandler) Checkins(c *gin.Context) {
	result, err := h.svc.Checkins.Run(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// PodDigests queues the weekly pod recaps.
func (h *JobHandler) PodDigests(c *gin.Context) {
	result, err := h.svc.PodDigests.Run(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// NPS opens survey rounds for one trainer or for every eligible trainer.
func (h *JobHandler) NPS(c *gin.Context) {
	var req services.NPSRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.svc.NPS.Run(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ReviewRequests asks clients to review recently completed sessions.
func (h *JobHandler) ReviewRequests(c *gin.Context) {
	var req services.ReviewRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.svc.ReviewRequests.Run(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
