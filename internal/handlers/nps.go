package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/response"
)

// NPSHandler records client survey answers.
type NPSHandler struct {
	service *services.NPSBatcher
}

// NewNPSHandler constructs an NPSHandler.
func NewNPSHandler(service *services.NPSBatcher) *NPSHandler {
	return &NPSHandler{service: service}
}

// Respond stores the caller's score for a survey slot.
func (h *NPSHandler) Respond(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var payload services.NPSAnswerInput
	if !bindAndValidate(c, &payload) {
		return
	}

	answer, err := h.service.Respond(requestContext(c), userID, strings.TrimSpace(c.Param("id")), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, answer)
}
