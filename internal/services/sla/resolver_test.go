package sla_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminal-bench/incidenthub/internal/models"
	"github.com/terminal-bench/incidenthub/internal/services/sla"
)

func TestResolverSelection(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assignee := activeUser(models.RoleCoordinator, now.Add(-1*time.Hour))
	coordinator := activeUser(models.RoleCoordinator, now.Add(-2*time.Hour))
	admin := activeUser(models.RoleAdmin, now.Add(-3*time.Hour))

	t.Run("excludes the current assignee and prefers recent logins", func(t *testing.T) {
		directory := &fakeDirectory{}
		directory.setUsers([]models.User{assignee, coordinator, admin})
		resolver := sla.NewResolver(directory)

		target, found, err := resolver.Resolve(context.Background(), &assignee.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, coordinator.ID, target,
			"assignee excluded, coordinator with most recent login wins")
	})

	t.Run("unassigned incidents go to an admin only", func(t *testing.T) {
		directory := &fakeDirectory{}
		directory.setUsers([]models.User{coordinator, admin})
		resolver := sla.NewResolver(directory)

		target, found, err := resolver.Resolve(context.Background(), nil)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, admin.ID, target)
	})

	t.Run("empty pool is a recoverable outcome, not an error", func(t *testing.T) {
		directory := &fakeDirectory{}
		resolver := sla.NewResolver(directory)

		target, found, err := resolver.Resolve(context.Background(), nil)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, uuid.Nil, target)
	})

	t.Run("inactive users never qualify", func(t *testing.T) {
		inactive := activeUser(models.RoleAdmin, now)
		inactive.IsActive = false

		directory := &fakeDirectory{}
		directory.setUsers([]models.User{inactive})
		resolver := sla.NewResolver(directory)

		_, found, err := resolver.Resolve(context.Background(), nil)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("the only coordinator being the assignee leaves no target", func(t *testing.T) {
		directory := &fakeDirectory{}
		directory.setUsers([]models.User{assignee})
		resolver := sla.NewResolver(directory)

		_, found, err := resolver.Resolve(context.Background(), &assignee.ID)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
