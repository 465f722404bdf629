package models

import (
	"time"

	"github.com/google/uuid"
)

// Incident status values.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusEscalated  = "escalated"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// Incident type values.
const (
	TypeBug     = "bug"
	TypeError   = "error"
	TypeRequest = "request"
	TypeIssue   = "issue"
	TypeOther   = "other"
)

// Incident priority values.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Incident represents a tracked incident with an SLA deadline
type Incident struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Description     string     `json:"description" db:"description"`
	Type            string     `json:"type" db:"type"`
	Priority        string     `json:"priority" db:"priority"`
	Status          string     `json:"status" db:"status"`
	ReportedAt      time.Time  `json:"reported_at" db:"reported_at"`
	SLAHours        int        `json:"sla_hours" db:"sla_hours"`
	DueAt           time.Time  `json:"due_at" db:"due_at"`
	CreatedByID     uuid.UUID  `json:"created_by_id" db:"created_by_id"`
	AssignedToID    *uuid.UUID `json:"assigned_to_id,omitempty" db:"assigned_to_id"`
	IsEscalated     bool       `json:"is_escalated" db:"is_escalated"`
	EscalatedToID   *uuid.UUID `json:"escalated_to_id,omitempty" db:"escalated_to_id"`
	EscalatedAt     *time.Time `json:"escalated_at,omitempty" db:"escalated_at"`
	ResolutionNotes string     `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// ComputeDueAt derives the SLA deadline from the original report time. The
// report time is always the anchor, even when the SLA budget changes later.
func ComputeDueAt(reportedAt time.Time, slaHours int) time.Time {
	return reportedAt.Add(time.Duration(slaHours) * time.Hour)
}

// IsTerminal reports whether the incident has left the scheduling lifecycle.
// Resolved and closed incidents must never be mutated by a checkpoint.
func (i *Incident) IsTerminal() bool {
	return i.Status == StatusResolved || i.Status == StatusClosed
}
