package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/response"
)

// PredictionHandler returns a user's predicted best send hours.
type PredictionHandler struct {
	predictor *services.SendTimePredictor
}

// NewPredictionHandler constructs a PredictionHandler.
func NewPredictionHandler(predictor *services.SendTimePredictor) *PredictionHandler {
	return &PredictionHandler{predictor: predictor}
}

// List returns one row per weekday that has a prediction.
func (h *PredictionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	predictions, err := h.predictor.Predictions(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, predictions)
}
