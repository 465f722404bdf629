package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	NotificationAssignment   = "assignment"
	NotificationComment      = "comment"
	NotificationStatusChange = "status_change"
	NotificationEscalation   = "escalation"
	NotificationDueDate      = "due_date"
	NotificationMention      = "mention"
)

// EntityIncident is the entity type for incident-scoped records.
const EntityIncident = "incident"

// Notification represents a notification message addressed to a single user
type Notification struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Kind        string          `json:"kind" db:"kind"`
	Message     string          `json:"message" db:"message"`
	RecipientID uuid.UUID       `json:"recipient_id" db:"recipient_id"`
	EntityType  string          `json:"entity_type" db:"entity_type"`
	EntityID    uuid.UUID       `json:"entity_id" db:"entity_id"`
	Data        json.RawMessage `json:"data,omitempty" db:"data"`
	IsRead      bool            `json:"is_read" db:"is_read"`
	IsEmailSent bool            `json:"is_email_sent" db:"is_email_sent"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
