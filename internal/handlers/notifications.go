package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/terminal-bench/incidenthub/internal/middleware"
	"github.com/terminal-bench/incidenthub/internal/repository"
	"github.com/terminal-bench/incidenthub/internal/services/notification"
)

// NotificationHandler handles notification read endpoints
type NotificationHandler struct {
	notifications *repository.NotificationRepository
	service       *notification.Service
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *repository.NotificationRepository, service *notification.Service) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, service: service}
}

// List returns the authenticated user's notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notifications.ListByRecipient(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// Recent returns the user's most recent notifications from the redis cache
func (h *NotificationHandler) Recent(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	notifications, err := h.service.GetRecent(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get recent notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// MarkRead marks one of the user's notifications as read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	updated, err := h.notifications.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification marked read"})
}
