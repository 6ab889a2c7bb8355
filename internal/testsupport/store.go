package testsupport

import (
	"path/filepath"
	"testing"

	"factreel/internal/config"
	"factreel/internal/runstore"
)

// MustOpenStore opens a runstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(filepath.Join(cfg.Paths.LogDir, "history.db"))
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
