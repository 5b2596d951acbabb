//go:build sqlite_fts5

package spacestore

import (
	"database/sql"
	"fmt"

	"github.com/plumehq/plume/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, title, content string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO notes_fts (id, title, content) VALUES (?, ?, ?)`,
		id, title, content)
	if err != nil {
		return fmt.Errorf("spacestore: upsert fts: %w", err)
	}
	return nil
}

// SearchFullText performs an FTS5 query over a space's notes.
func (s *Store) SearchFullText(query, spaceID string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(`
		SELECT n.id, n.space_id, n.title, n.folder, n.content, n.kind, n.created_at, n.modified_at
		FROM notes_fts f
		JOIN notes n ON n.id = f.id
		WHERE notes_fts MATCH ? AND n.space_id = ?
		ORDER BY rank
		LIMIT ?
	`, query, spaceID, limit)
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
