package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment represents a comment attached to an entity
type Comment struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Content    string    `json:"content" db:"content"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id" db:"entity_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Attachment represents an uploaded file attached to an entity
type Attachment struct {
	ID           uuid.UUID `json:"id" db:"id"`
	FileName     string    `json:"file_name" db:"file_name"`
	StorageKey   string    `json:"-" db:"storage_key"`
	MimeType     string    `json:"mime_type" db:"mime_type"`
	Size         int64     `json:"size" db:"size"`
	UploadedByID uuid.UUID `json:"uploaded_by_id" db:"uploaded_by_id"`
	EntityType   string    `json:"entity_type" db:"entity_type"`
	EntityID     uuid.UUID `json:"entity_id" db:"entity_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
