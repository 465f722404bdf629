package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/terminal-bench/incidenthub/internal/models"
)

// NotificationRepository handles notification database operations
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create creates a new notification record
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, kind, message, recipient_id, entity_type, entity_id, data, is_read, is_email_sent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.Kind, n.Message, n.RecipientID, n.EntityType, n.EntityID,
		n.Data, n.IsRead, n.IsEmailSent, n.CreatedAt,
	)
	return err
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	err := r.db.QueryRowContext(ctx,
		`SELECT id, kind, message, recipient_id, entity_type, entity_id, data, is_read, is_email_sent, created_at
		 FROM notifications WHERE id = $1`, id,
	).Scan(&n.ID, &n.Kind, &n.Message, &n.RecipientID, &n.EntityType, &n.EntityID,
		&n.Data, &n.IsRead, &n.IsEmailSent, &n.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// ListByRecipient retrieves notifications for a user, newest first
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT id, kind, message, recipient_id, entity_type, entity_id, data, is_read, is_email_sent, created_at
		 FROM notifications WHERE recipient_id = $1`
	if unreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.Kind, &n.Message, &n.RecipientID, &n.EntityType,
			&n.EntityID, &n.Data, &n.IsRead, &n.IsEmailSent, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead marks a notification as read, scoped to its recipient
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2",
		id, recipientID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkEmailSent records that the notification was delivered by email
func (r *NotificationRepository) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET is_email_sent = TRUE WHERE id = $1", id)
	return err
}

// DeleteByEntity removes all notifications referencing an entity
func (r *NotificationRepository) DeleteByEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE entity_type = $1 AND entity_id = $2",
		entityType, entityID,
	)
	return err
}

// DeleteReadOlderThan removes read notifications created before the cutoff
func (r *NotificationRepository) DeleteReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE is_read = TRUE AND created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up notifications: %w", err)
	}
	return res.RowsAffected()
}
