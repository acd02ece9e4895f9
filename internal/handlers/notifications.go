package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/fitos/notify/internal/auth"
	"github.com/fitos/notify/internal/realtime"
	"github.com/fitos/notify/internal/services"
	"github.com/fitos/notify/pkg/errors"
	"github.com/fitos/notify/pkg/response"
)

const (
	defaultNotificationPageSize = 25
	maxNotificationPageSize     = 100
)

// NotificationHandler exposes HTTP endpoints for in-app notifications.
type NotificationHandler struct {
	service *services.NotificationService
	hub     *realtime.Hub
	auth    *iauth.Authenticator
}

// NewNotificationHandler constructs a notification handler. hub and auth are
// only needed for the websocket stream.
func NewNotificationHandler(service *services.NotificationService, hub *realtime.Hub, auth *iauth.Authenticator) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		hub:     hub,
		auth:    auth,
	}
}

// List returns notifications for the current user.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	perPage := parseIntQuery(c, "per_page", defaultNotificationPageSize)
	if perPage <= 0 || perPage > maxNotificationPageSize {
		perPage = defaultNotificationPageSize
	}
	page := max(1, parseIntQuery(c, "page", 1))

	items, total, err := h.service.ListForUser(requestContext(c), services.ListNotificationsInput{
		UserID:     userID,
		UnreadOnly: parseBoolQuery(c, "unread"),
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, response.NewMeta(page, perPage, total))
}

// UnreadCount returns the number of unread notifications.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	var (
		dto *services.NotificationDTO
		err error
	)
	if read {
		dto, err = h.service.MarkRead(requestContext(c), userID, id)
	} else {
		dto, err = h.service.MarkUnread(requestContext(c), userID, id)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Opened records that the user opened a notification.
func (h *NotificationHandler) Opened(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.RecordOpen(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"recorded": true})
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Stream upgrades the connection to a WebSocket for notification streaming.
// Browsers cannot set headers on socket upgrades, so the token may also be
// passed as a query parameter.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.auth == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	principal, err := h.auth.Authenticate(token)
	if err != nil || principal.UserID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	h.hub.Serve(principal.UserID, c.Writer, c.Request)
}
