package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/terminal-bench/incidenthub/internal/config"
	"github.com/terminal-bench/incidenthub/internal/middleware"
	"github.com/terminal-bench/incidenthub/internal/models"
	"github.com/terminal-bench/incidenthub/internal/repository"
	"github.com/terminal-bench/incidenthub/internal/services/attachment"
	"github.com/terminal-bench/incidenthub/internal/services/notification"
)

// CommentHandler handles incident comments and attachments
type CommentHandler struct {
	incidents *repository.IncidentRepository
	comments  *repository.CommentRepository
	storage   *attachment.Storage
	notifier  *notification.Service
	cfg       *config.Config
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(
	incidents *repository.IncidentRepository,
	comments *repository.CommentRepository,
	storage *attachment.Storage,
	notifier *notification.Service,
	cfg *config.Config,
) *CommentHandler {
	return &CommentHandler{
		incidents: incidents,
		comments:  comments,
		storage:   storage,
		notifier:  notifier,
		cfg:       cfg,
	}
}

type createCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateComment adds a comment to an incident
func (h *CommentHandler) CreateComment(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	incidentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}

	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidents.GetByID(c.Request.Context(), incidentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	comment := &models.Comment{
		ID:         uuid.New(),
		Content:    req.Content,
		UserID:     userID,
		EntityType: models.EntityIncident,
		EntityID:   incidentID,
		CreatedAt:  time.Now(),
	}

	if err := h.comments.CreateComment(c.Request.Context(), comment); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create comment"})
		return
	}

	// Let the people involved know, skipping the commenter.
	message := fmt.Sprintf("New comment on incident %q", incident.Title)
	data := map[string]interface{}{
		"incident_id":    incident.ID.String(),
		"incident_title": incident.Title,
		"comment_id":     comment.ID.String(),
	}
	if incident.CreatedByID != userID {
		h.notifyQuiet(c, models.NotificationComment, message, incident.CreatedByID, incidentID, data)
	}
	if incident.AssignedToID != nil && *incident.AssignedToID != userID && *incident.AssignedToID != incident.CreatedByID {
		h.notifyQuiet(c, models.NotificationComment, message, *incident.AssignedToID, incidentID, data)
	}

	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}

// UploadAttachment stores a file against an incident
func (h *CommentHandler) UploadAttachment(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	incidentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}

	incident, err := h.incidents.GetByID(c.Request.Context(), incidentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	key, err := h.storage.Upload(c.Request.Context(), incidentID, file, header.Size, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	record := &models.Attachment{
		ID:           uuid.New(),
		FileName:     header.Filename,
		StorageKey:   key,
		MimeType:     contentType,
		Size:         header.Size,
		UploadedByID: userID,
		EntityType:   models.EntityIncident,
		EntityID:     incidentID,
		CreatedAt:    time.Now(),
	}

	if err := h.comments.CreateAttachment(c.Request.Context(), record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save attachment record"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"attachment": record})
}

// DownloadAttachment streams an attachment payload
func (h *CommentHandler) DownloadAttachment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}

	record, err := h.comments.GetAttachment(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attachment"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
		return
	}

	reader, err := h.storage.Download(c.Request.Context(), record.StorageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.FileName))
	c.DataFromReader(http.StatusOK, record.Size, record.MimeType, reader, nil)
}

func (h *CommentHandler) notifyQuiet(c *gin.Context, kind, message string, recipientID, entityID uuid.UUID, data map[string]interface{}) {
	// Comment notifications are best-effort; the comment itself is saved.
	_ = h.notifier.Notify(c.Request.Context(), kind, message, recipientID, models.EntityIncident, entityID, data)
}
