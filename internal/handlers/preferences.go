package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/response"
)

// PreferenceHandler reads and updates a user's notification policy.
type PreferenceHandler struct {
	service *services.PreferenceService
}

// NewPreferenceHandler constructs a PreferenceHandler.
func NewPreferenceHandler(service *services.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

// Get returns the stored preferences or the defaults.
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	pref, err := h.service.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

// Update merges the supplied fields into the user's preferences.
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var payload services.UpdatePreferencesInput
	if !bindAndValidate(c, &payload) {
		return
	}

	pref, err := h.service.Update(requestContext(c), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}
