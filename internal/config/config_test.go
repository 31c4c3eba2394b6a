package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "lattice.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 32, cfg.MaxCascadeDepth)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LATTICE_DB_PATH", "/tmp/other.db")
	t.Setenv("LATTICE_REQUEST_TIMEOUT", "1s")
	t.Setenv("LATTICE_POLL_INTERVAL", "10ms")
	t.Setenv("LATTICE_MAX_CASCADE_DEPTH", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 4, cfg.MaxCascadeDepth)
}

func TestLoadRejectsBadDepth(t *testing.T) {
	t.Setenv("LATTICE_MAX_CASCADE_DEPTH", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsPollLargerThanTimeout(t *testing.T) {
	t.Setenv("LATTICE_REQUEST_TIMEOUT", "50ms")
	t.Setenv("LATTICE_POLL_INTERVAL", "1s")

	_, err := Load()
	assert.Error(t, err)
}
