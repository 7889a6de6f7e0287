package store

import (
	"path/filepath"
	"testing"
)

// createTestStore creates a new SQLite store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// adapters returns every KV implementation under test.
func adapters(t *testing.T) map[string]KV {
	t.Helper()
	return map[string]KV{
		"sqlite": createTestStore(t),
		"memory": NewMemory(),
	}
}
