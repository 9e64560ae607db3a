package testutil

import (
	"path/filepath"
	"testing"

	"github.com/peterkovacs/vanity/internal/store"
)

// SetupTestStore creates a test database and returns the store with a
// cleanup function. Uses t.TempDir() for automatic cleanup on test
// completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
