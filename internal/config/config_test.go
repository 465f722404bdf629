package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/terminal-bench/incidenthub/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24, cfg.DefaultSLAHours)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, int64(25*1024*1024), cfg.MaxUploadSize)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_SLA_HOURS", "8")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("DEBUG", "true")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 8, cfg.DefaultSLAHours)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.True(t, cfg.Debug)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DEFAULT_SLA_HOURS", "not-a-number")
	t.Setenv("SWEEP_INTERVAL", "soon")

	cfg := config.Load()

	assert.Equal(t, 24, cfg.DefaultSLAHours)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
}
