package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/response"
)

// DeviceHandler registers push tokens for the current user.
type DeviceHandler struct {
	service *services.DeviceService
}

// NewDeviceHandler constructs a DeviceHandler.
func NewDeviceHandler(service *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{service: service}
}

type registerDevicePayload struct {
	Token    string `json:"token" validate:"required,max=512"`
	Platform string `json:"platform" validate:"required"`
}

// Register stores or refreshes a device token.
func (h *DeviceHandler) Register(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var payload registerDevicePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	device, err := h.service.Register(requestContext(c), userID, services.RegisterDeviceInput{
		Token:    payload.Token,
		Platform: payload.Platform,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, device)
}

// Unregister removes one of the user's device tokens.
func (h *DeviceHandler) Unregister(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	token := strings.TrimSpace(c.Param("token"))
	if err := h.service.Unregister(requestContext(c), userID, token); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
