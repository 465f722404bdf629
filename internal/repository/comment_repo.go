package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/terminal-bench/incidenthub/internal/models"
)

// CommentRepository handles comment and attachment database operations
type CommentRepository struct {
	db *sql.DB
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// CreateComment creates a new comment
func (r *CommentRepository) CreateComment(ctx context.Context, c *models.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, content, user_id, entity_type, entity_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Content, c.UserID, c.EntityType, c.EntityID, c.CreatedAt,
	)
	return err
}

// ListComments retrieves comments for an entity, oldest first
func (r *CommentRepository) ListComments(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, user_id, entity_type, entity_id, created_at
		 FROM comments WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY created_at ASC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.Content, &c.UserID, &c.EntityType, &c.EntityID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// DeleteCommentsByEntity removes all comments for an entity
func (r *CommentRepository) DeleteCommentsByEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM comments WHERE entity_type = $1 AND entity_id = $2",
		entityType, entityID,
	)
	return err
}

// CreateAttachment creates a new attachment record
func (r *CommentRepository) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attachments (id, file_name, storage_key, mime_type, size, uploaded_by_id, entity_type, entity_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.FileName, a.StorageKey, a.MimeType, a.Size,
		a.UploadedByID, a.EntityType, a.EntityID, a.CreatedAt,
	)
	return err
}

// GetAttachment retrieves an attachment by ID
func (r *CommentRepository) GetAttachment(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	var a models.Attachment
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, storage_key, mime_type, size, uploaded_by_id, entity_type, entity_id, created_at
		 FROM attachments WHERE id = $1`, id,
	).Scan(&a.ID, &a.FileName, &a.StorageKey, &a.MimeType, &a.Size,
		&a.UploadedByID, &a.EntityType, &a.EntityID, &a.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &a, nil
}

// ListAttachments retrieves attachments for an entity, newest first
func (r *CommentRepository) ListAttachments(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.Attachment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_name, storage_key, mime_type, size, uploaded_by_id, entity_type, entity_id, created_at
		 FROM attachments WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY created_at DESC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var a models.Attachment
		err := rows.Scan(&a.ID, &a.FileName, &a.StorageKey, &a.MimeType, &a.Size,
			&a.UploadedByID, &a.EntityType, &a.EntityID, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// DeleteAttachmentsByEntity removes all attachment records for an entity
func (r *CommentRepository) DeleteAttachmentsByEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM attachments WHERE entity_type = $1 AND entity_id = $2",
		entityType, entityID,
	)
	return err
}
