// Package testutil provides shared test helpers for setting up vaults and
// space stores.
package testutil

import (
	"os"
	"testing"

	"github.com/plumehq/plume/internal/spacestore"
	"github.com/plumehq/plume/internal/storage"
)

// TestVault creates a temporary vault directory with an FS provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestStore creates a temporary space store that is automatically cleaned
// up, with one space "s1" registered.
func TestStore(t *testing.T) *spacestore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "plume-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	s, err := spacestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSpace("s1", "Personal"); err != nil {
		t.Fatal(err)
	}
	return s
}
