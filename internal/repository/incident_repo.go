package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/terminal-bench/incidenthub/internal/models"
)

const incidentColumns = `id, title, description, type, priority, status, reported_at, sla_hours, due_at,
	created_by_id, assigned_to_id, is_escalated, escalated_to_id, escalated_at,
	resolution_notes, resolved_at, closed_at, created_at, updated_at`

// IncidentFilter narrows incident listings
type IncidentFilter struct {
	Status       string
	Priority     string
	Type         string
	AssignedToID *uuid.UUID
	CreatedByID  *uuid.UUID
	IsEscalated  *bool
}

// IncidentRepository handles incident database operations
type IncidentRepository struct {
	db *sql.DB
}

// NewIncidentRepository creates a new incident repository
func NewIncidentRepository(db *sql.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create creates a new incident
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO incidents (id, title, description, type, priority, status, reported_at, sla_hours, due_at,
			created_by_id, assigned_to_id, is_escalated, resolution_notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		incident.ID, incident.Title, incident.Description, incident.Type, incident.Priority,
		incident.Status, incident.ReportedAt, incident.SLAHours, incident.DueAt,
		incident.CreatedByID, incident.AssignedToID, incident.IsEscalated,
		incident.ResolutionNotes, incident.CreatedAt, incident.UpdatedAt,
	)
	return err
}

// GetByID retrieves an incident by ID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)

	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return incident, nil
}

// Update persists the mutable fields of an incident
func (r *IncidentRepository) Update(ctx context.Context, incident *models.Incident) error {
	incident.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE incidents SET title = $1, description = $2, type = $3, priority = $4, status = $5,
			sla_hours = $6, due_at = $7, assigned_to_id = $8, is_escalated = $9, escalated_to_id = $10,
			escalated_at = $11, resolution_notes = $12, resolved_at = $13, closed_at = $14, updated_at = $15
		 WHERE id = $16`,
		incident.Title, incident.Description, incident.Type, incident.Priority, incident.Status,
		incident.SLAHours, incident.DueAt, incident.AssignedToID, incident.IsEscalated,
		incident.EscalatedToID, incident.EscalatedAt, incident.ResolutionNotes,
		incident.ResolvedAt, incident.ClosedAt, incident.UpdatedAt, incident.ID,
	)
	return err
}

// MarkEscalated flips an incident into the escalated state. The update is
// conditional on the incident still being non-terminal and not yet escalated,
// so exactly one of two racing callers observes updated=true.
func (r *IncidentRepository) MarkEscalated(ctx context.Context, id, targetID uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE incidents
		 SET status = $1, is_escalated = TRUE, escalated_to_id = $2, escalated_at = $3, updated_at = $3
		 WHERE id = $4 AND is_escalated = FALSE AND status NOT IN ($5, $6)`,
		models.StatusEscalated, targetID, at, id, models.StatusResolved, models.StatusClosed,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark incident escalated: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// ListPendingOverdue retrieves all incidents that are past their SLA deadline
// and not yet resolved or closed
func (r *IncidentRepository) ListPendingOverdue(ctx context.Context, now time.Time) ([]models.Incident, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE status NOT IN ($1, $2) AND due_at <= $3
		 ORDER BY due_at ASC`,
		models.StatusResolved, models.StatusClosed, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// ListPending retrieves all incidents that still have an active SLA schedule
func (r *IncidentRepository) ListPending(ctx context.Context) ([]models.Incident, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE status NOT IN ($1, $2)
		 ORDER BY due_at ASC`,
		models.StatusResolved, models.StatusClosed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// List retrieves incidents matching the filter with pagination
func (r *IncidentRepository) List(ctx context.Context, filter IncidentFilter, limit, offset int) ([]models.Incident, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}

	if filter.Status != "" {
		addArg("status", filter.Status)
	}
	if filter.Priority != "" {
		addArg("priority", filter.Priority)
	}
	if filter.Type != "" {
		addArg("type", filter.Type)
	}
	if filter.AssignedToID != nil {
		addArg("assigned_to_id", *filter.AssignedToID)
	}
	if filter.CreatedByID != nil {
		addArg("created_by_id", *filter.CreatedByID)
	}
	if filter.IsEscalated != nil {
		addArg("is_escalated", *filter.IsEscalated)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM incidents "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM incidents %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
			incidentColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents, err := collectIncidents(rows)
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

// Delete deletes an incident
func (r *IncidentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM incidents WHERE id = $1", id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var incident models.Incident
	err := row.Scan(
		&incident.ID, &incident.Title, &incident.Description, &incident.Type, &incident.Priority,
		&incident.Status, &incident.ReportedAt, &incident.SLAHours, &incident.DueAt,
		&incident.CreatedByID, &incident.AssignedToID, &incident.IsEscalated,
		&incident.EscalatedToID, &incident.EscalatedAt, &incident.ResolutionNotes,
		&incident.ResolvedAt, &incident.ClosedAt, &incident.CreatedAt, &incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

func collectIncidents(rows *sql.Rows) ([]models.Incident, error) {
	var incidents []models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, *incident)
	}
	return incidents, rows.Err()
}
