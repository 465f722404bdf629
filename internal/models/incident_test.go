package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/terminal-bench/incidenthub/internal/models"
)

func TestComputeDueAt(t *testing.T) {
	reported := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, reported.Add(24*time.Hour), models.ComputeDueAt(reported, 24))
	assert.Equal(t, reported.Add(4*time.Hour), models.ComputeDueAt(reported, 4))
	// A shrunk budget can land in the past; callers decide how to react.
	assert.Equal(t, reported, models.ComputeDueAt(reported, 0))
}

func TestIsTerminal(t *testing.T) {
	cases := map[string]bool{
		models.StatusOpen:       false,
		models.StatusInProgress: false,
		models.StatusEscalated:  false,
		models.StatusResolved:   true,
		models.StatusClosed:     true,
	}
	for status, want := range cases {
		inc := &models.Incident{Status: status}
		assert.Equal(t, want, inc.IsTerminal(), "status %s", status)
	}
}
