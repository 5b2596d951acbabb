// Package storage defines the local note-vault abstraction.
package storage

import "github.com/plumehq/plume/internal/models"

// Provider is the interface for local vault operations. All paths are
// relative to the vault root.
type Provider interface {
	// List returns every note under dir, content included (copy-on-read).
	List(dir string) ([]models.Note, error)
	// ListFolders returns every folder up to maxDepth levels deep
	// (0 means unlimited).
	ListFolders(maxDepth int) ([]models.Folder, error)
	// Read returns the note at path, or an error satisfying os.ErrNotExist.
	Read(path string) (*models.Note, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete moves the note into the trash folder and returns its
	// trashed path.
	Delete(path string) (string, error)
	// Move relocates a note into destFolder and returns its new path.
	Move(path, destFolder string) (string, error)
	// Restore moves a trashed note back out of the trash folder and
	// returns its restored path.
	Restore(trashedPath, destFolder string) (string, error)
}
