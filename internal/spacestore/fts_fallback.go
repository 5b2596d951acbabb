//go:build !sqlite_fts5

package spacestore

import (
	"database/sql"
	"fmt"

	"github.com/plumehq/plume/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; full-text search uses a LIKE fallback on the
	// notes.content column.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error {
	// Content already lives in the notes table; nothing extra to do.
	return nil
}

// SearchFullText performs a LIKE-based search (fallback when FTS5 is not
// compiled in).
func (s *Store) SearchFullText(query, spaceID string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + query + "%"
	rows, err := s.conn.Query(`
		SELECT id, space_id, title, folder, content, kind, created_at, modified_at
		FROM notes
		WHERE space_id = ? AND (title LIKE ? OR content LIKE ?)
		LIMIT ?
	`, spaceID, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("spacestore: search: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNoteRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
