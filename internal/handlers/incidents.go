package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/terminal-bench/incidenthub/internal/config"
	"github.com/terminal-bench/incidenthub/internal/middleware"
	"github.com/terminal-bench/incidenthub/internal/models"
	"github.com/terminal-bench/incidenthub/internal/repository"
	"github.com/terminal-bench/incidenthub/internal/services/notification"
	"github.com/terminal-bench/incidenthub/internal/services/sla"
)

// IncidentHandler handles incident-related requests
type IncidentHandler struct {
	incidents     *repository.IncidentRepository
	comments      *repository.CommentRepository
	notifications *repository.NotificationRepository
	notifier      *notification.Service
	scheduler     *sla.Scheduler
	cfg           *config.Config
}

// NewIncidentHandler creates a new incident handler
func NewIncidentHandler(
	incidents *repository.IncidentRepository,
	comments *repository.CommentRepository,
	notifications *repository.NotificationRepository,
	notifier *notification.Service,
	scheduler *sla.Scheduler,
	cfg *config.Config,
) *IncidentHandler {
	return &IncidentHandler{
		incidents:     incidents,
		comments:      comments,
		notifications: notifications,
		notifier:      notifier,
		scheduler:     scheduler,
		cfg:           cfg,
	}
}

type createIncidentRequest struct {
	Title        string     `json:"title" binding:"required"`
	Description  string     `json:"description" binding:"required"`
	Type         string     `json:"type"`
	Priority     string     `json:"priority"`
	AssignedToID *uuid.UUID `json:"assigned_to_id"`
	SLAHours     int        `json:"sla_hours"`
}

// Create creates a new incident and arms its SLA checkpoints
func (h *IncidentHandler) Create(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Type == "" {
		req.Type = models.TypeIssue
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if req.SLAHours == 0 {
		req.SLAHours = h.cfg.DefaultSLAHours
	}
	if req.SLAHours < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sla_hours must be positive"})
		return
	}

	now := time.Now()
	incident := &models.Incident{
		ID:           uuid.New(),
		Title:        req.Title,
		Description:  req.Description,
		Type:         req.Type,
		Priority:     req.Priority,
		Status:       models.StatusOpen,
		ReportedAt:   now,
		SLAHours:     req.SLAHours,
		DueAt:        models.ComputeDueAt(now, req.SLAHours),
		CreatedByID:  userID,
		AssignedToID: req.AssignedToID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.incidents.Create(c.Request.Context(), incident); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create incident"})
		return
	}

	if incident.AssignedToID != nil {
		h.sendAssignmentNotification(c, incident, userID)
	}

	if err := h.scheduler.Schedule(c.Request.Context(), incident.ID, incident.DueAt); err != nil {
		log.Error().Err(err).Str("incident_id", incident.ID.String()).Msg("failed to schedule sla checkpoints")
	}

	c.JSON(http.StatusCreated, gin.H{"incident": incident})
}

// Get returns an incident with its comments and attachments
func (h *IncidentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}

	incident, err := h.incidents.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	comments, err := h.comments.ListComments(c.Request.Context(), models.EntityIncident, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load comments"})
		return
	}

	attachments, err := h.comments.ListAttachments(c.Request.Context(), models.EntityIncident, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attachments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"incident":    incident,
		"comments":    comments,
		"attachments": attachments,
	})
}

// List returns incidents matching the query filters with pagination
func (h *IncidentHandler) List(c *gin.Context) {
	filter := repository.IncidentFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Type:     c.Query("type"),
	}
	if v := c.Query("assigned_to_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assigned_to_id"})
			return
		}
		filter.AssignedToID = &id
	}
	if v := c.Query("created_by_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid created_by_id"})
			return
		}
		filter.CreatedByID = &id
	}
	if v := c.Query("is_escalated"); v != "" {
		escalated := v == "true"
		filter.IsEscalated = &escalated
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	incidents, total, err := h.incidents.List(c.Request.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list incidents"})
		return
	}

	totalPages := (total + limit - 1) / limit
	c.JSON(http.StatusOK, gin.H{
		"incidents":    incidents,
		"count":        total,
		"total_pages":  totalPages,
		"current_page": page,
	})
}

type updateIncidentRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Type            *string    `json:"type"`
	Priority        *string    `json:"priority"`
	Status          *string    `json:"status"`
	AssignedToID    *uuid.UUID `json:"assigned_to_id"`
	SLAHours        *int       `json:"sla_hours"`
	ResolutionNotes *string    `json:"resolution_notes"`
	EscalatedToID   *uuid.UUID `json:"escalated_to_id"`
}

// Update applies a partial update to an incident. Changing the SLA budget
// recomputes the deadline from the original report time and rearms the
// checkpoint set; reaching a terminal status cancels it.
func (h *IncidentHandler) Update(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}

	var req updateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	incident, err := h.incidents.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	previousStatus := incident.Status
	previousAssignee := incident.AssignedToID

	if req.Title != nil {
		incident.Title = *req.Title
	}
	if req.Description != nil {
		incident.Description = *req.Description
	}
	if req.Type != nil {
		incident.Type = *req.Type
	}
	if req.Priority != nil {
		incident.Priority = *req.Priority
	}
	if req.AssignedToID != nil {
		incident.AssignedToID = req.AssignedToID
	}

	rescheduled := false
	if req.SLAHours != nil && *req.SLAHours != incident.SLAHours {
		if *req.SLAHours < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sla_hours must be positive"})
			return
		}
		incident.SLAHours = *req.SLAHours
		incident.DueAt = models.ComputeDueAt(incident.ReportedAt, incident.SLAHours)
		rescheduled = true
	}

	now := time.Now()
	statusChanged := req.Status != nil && *req.Status != previousStatus
	if statusChanged {
		incident.Status = *req.Status
		switch incident.Status {
		case models.StatusResolved:
			if req.ResolutionNotes != nil {
				incident.ResolutionNotes = *req.ResolutionNotes
			}
			incident.ResolvedAt = &now
		case models.StatusClosed:
			incident.ClosedAt = &now
		}
	}

	// Manual escalation path, distinct from the automatic SLA transition.
	manuallyEscalated := req.EscalatedToID != nil && !incident.IsEscalated
	if manuallyEscalated {
		incident.IsEscalated = true
		incident.EscalatedToID = req.EscalatedToID
		incident.EscalatedAt = &now
		incident.Status = models.StatusEscalated
	}

	if err := h.incidents.Update(c.Request.Context(), incident); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update incident"})
		return
	}

	if incident.IsTerminal() {
		h.scheduler.Cancel(incident.ID)
	} else if rescheduled {
		if err := h.scheduler.Schedule(c.Request.Context(), incident.ID, incident.DueAt); err != nil {
			log.Error().Err(err).Str("incident_id", incident.ID.String()).Msg("failed to reschedule sla checkpoints")
		}
	}

	if statusChanged {
		h.notify(c, models.NotificationStatusChange,
			fmt.Sprintf("Incident %q changed status to %s", incident.Title, incident.Status),
			incident.CreatedByID, incident.ID, map[string]interface{}{
				"incident_id":     incident.ID.String(),
				"incident_title":  incident.Title,
				"previous_status": previousStatus,
				"new_status":      incident.Status,
			})
	}

	if manuallyEscalated {
		h.notify(c, models.NotificationEscalation,
			fmt.Sprintf("Incident %q has been escalated to you", incident.Title),
			*incident.EscalatedToID, incident.ID, map[string]interface{}{
				"incident_id":     incident.ID.String(),
				"incident_title":  incident.Title,
				"escalated_by_id": userID.String(),
			})
	}

	assigneeChanged := req.AssignedToID != nil &&
		(previousAssignee == nil || *previousAssignee != *req.AssignedToID)
	if assigneeChanged {
		h.sendAssignmentNotification(c, incident, userID)
	}

	c.JSON(http.StatusOK, gin.H{"incident": incident})
}

// Delete removes an incident and its dependent records. Only an admin or
// the incident's creator may delete it.
func (h *IncidentHandler) Delete(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}

	incident, err := h.incidents.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	if middleware.GetRole(c) != models.RoleAdmin && userID != incident.CreatedByID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to delete this incident"})
		return
	}

	ctx := c.Request.Context()
	if err := h.comments.DeleteCommentsByEntity(ctx, models.EntityIncident, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete comments"})
		return
	}
	if err := h.comments.DeleteAttachmentsByEntity(ctx, models.EntityIncident, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete attachments"})
		return
	}
	if err := h.notifications.DeleteByEntity(ctx, models.EntityIncident, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notifications"})
		return
	}
	if err := h.incidents.Delete(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete incident"})
		return
	}

	h.scheduler.Cancel(id)
	c.JSON(http.StatusOK, gin.H{"message": "incident deleted"})
}

func (h *IncidentHandler) sendAssignmentNotification(c *gin.Context, incident *models.Incident, assignedByID uuid.UUID) {
	h.notify(c, models.NotificationAssignment,
		fmt.Sprintf("You have been assigned incident %q", incident.Title),
		*incident.AssignedToID, incident.ID, map[string]interface{}{
			"incident_id":    incident.ID.String(),
			"incident_title": incident.Title,
			"assigned_by_id": assignedByID.String(),
		})
}

func (h *IncidentHandler) notify(c *gin.Context, kind, message string, recipientID, entityID uuid.UUID, data map[string]interface{}) {
	err := h.notifier.Notify(c.Request.Context(), kind, message, recipientID, models.EntityIncident, entityID, data)
	if err != nil {
		log.Error().Err(err).
			Str("incident_id", entityID.String()).
			Str("kind", kind).
			Msg("failed to send notification")
	}
}
