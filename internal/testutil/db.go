package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/lattice/internal/config"
	"github.com/roach88/lattice/internal/store"
)

// OpenStore opens a fresh SQLite store under t.TempDir and closes it when
// the test finishes.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lattice.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// FastConfig returns a node configuration with short waits so tests that
// exercise the request/response path fail quickly instead of hanging.
func FastConfig() config.Config {
	return config.Config{
		DBPath:          "unused",
		RequestTimeout:  2 * time.Second,
		PollInterval:    5 * time.Millisecond,
		MaxCascadeDepth: 16,
	}
}
