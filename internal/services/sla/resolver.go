package sla

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/terminal-bench/incidenthub/internal/models"
)

// Directory is the user-directory contract the resolver depends on.
// Implementations must return candidates ordered by most recent login first,
// with ID ascending as the tie-break.
type Directory interface {
	FindActiveByRole(ctx context.Context, roles []string, excludeID *uuid.UUID) ([]models.User, error)
}

// Resolver picks the recipient of an automatic escalation.
type Resolver struct {
	directory Directory
}

// NewResolver creates a new escalation target resolver
func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve returns the user an overdue incident should be escalated to.
//
// With an assignee, the pool is active coordinators and admins excluding the
// assignee. Without one, only active admins qualify. An empty pool is a
// recoverable outcome, reported as ok=false rather than an error: the next
// reconciliation sweep retries once a qualifying user becomes active.
func (r *Resolver) Resolve(ctx context.Context, currentAssigneeID *uuid.UUID) (uuid.UUID, bool, error) {
	var (
		candidates []models.User
		err        error
	)

	if currentAssigneeID != nil {
		candidates, err = r.directory.FindActiveByRole(ctx,
			[]string{models.RoleCoordinator, models.RoleAdmin}, currentAssigneeID)
	} else {
		candidates, err = r.directory.FindActiveByRole(ctx,
			[]string{models.RoleAdmin}, nil)
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to query escalation candidates: %w", err)
	}

	if len(candidates) == 0 {
		return uuid.Nil, false, nil
	}
	return candidates[0].ID, true, nil
}
