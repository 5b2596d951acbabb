package spacestore

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/plumehq/plume/internal/models"
)

// NoteStore defines the structured-store operations consumed by the
// search and mutation layers. Depend on this interface rather than the
// concrete *Store to facilitate testing with fakes.
type NoteStore interface {
	EnsureSpace(id, name string) error
	ListSpaces() ([]string, error)
	CreateNote(spaceID, title, folder, content string) (*models.Note, error)
	GetNote(id string) (*models.Note, error)
	UpdateNote(id, content string) error
	TrashNote(id string) error
	RestoreNote(id string) error
	MoveNote(id, folder string) error
	ListNotes(spaceID, folder string) ([]models.Note, error)
	ListFolders(spaceID string) ([]models.Folder, error)
	SearchFullText(query, spaceID string, limit int) ([]models.Note, error)
	Close() error
}

// Verify *Store satisfies NoteStore at compile time.
var _ NoteStore = (*Store)(nil)

// ErrNoteNotFound is returned when an id has no row.
var ErrNoteNotFound = errors.New("spacestore: note not found")

// EnsureSpace creates the space row if it does not exist.
func (s *Store) EnsureSpace(id, name string) error {
	_, err := s.conn.Exec(`INSERT OR IGNORE INTO spaces (id, name) VALUES (?, ?)`, id, name)
	if err != nil {
		return fmt.Errorf("spacestore: ensure space: %w", err)
	}
	return nil
}

// ListSpaces returns every known space id.
func (s *Store) ListSpaces() ([]string, error) {
	rows, err := s.conn.Query(`SELECT id FROM spaces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("spacestore: list spaces: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateNote inserts a note with a fresh store-assigned UUID.
func (s *Store) CreateNote(spaceID, title, folder, content string) (*models.Note, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	tx, err := s.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("spacestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (id, space_id, title, folder, content, kind, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, 'note', ?, ?)
	`, id, spaceID, title, folder, content, now, now)
	if err != nil {
		return nil, fmt.Errorf("spacestore: insert note: %w", err)
	}
	if err := ftsUpsert(tx, id, title, content); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.Note{
		ID:         id,
		Title:      title,
		Content:    content,
		Folder:     folder,
		Source:     models.SourceSpace,
		Type:       models.TypeNote,
		SpaceID:    spaceID,
		CreatedAt:  now,
		ModifiedAt: now,
	}, nil
}

// GetNote returns the note with the given id.
func (s *Store) GetNote(id string) (*models.Note, error) {
	row := s.conn.QueryRow(`
		SELECT id, space_id, title, folder, content, kind, created_at, modified_at
		FROM notes WHERE id = ?
	`, id)
	return scanNote(row)
}

// UpdateNote replaces the note's content and refreshes modified_at.
func (s *Store) UpdateNote(id, content string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("spacestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`UPDATE notes SET content = ?, modified_at = ? WHERE id = ?`,
		content, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("spacestore: update note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoteNotFound
	}

	var title string
	_ = tx.QueryRow(`SELECT title FROM notes WHERE id = ?`, id).Scan(&title)
	if err := ftsUpsert(tx, id, title, content); err != nil {
		return err
	}
	return tx.Commit()
}

// TrashNote marks the note as trashed. The row is kept so restore works.
func (s *Store) TrashNote(id string) error {
	return s.setKind(id, "trash")
}

// RestoreNote clears the trashed marker.
func (s *Store) RestoreNote(id string) error {
	return s.setKind(id, "note")
}

func (s *Store) setKind(id, kind string) error {
	res, err := s.conn.Exec(`UPDATE notes SET kind = ?, modified_at = ? WHERE id = ?`,
		kind, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("spacestore: set kind: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// MoveNote changes the note's folder.
func (s *Store) MoveNote(id, folder string) error {
	res, err := s.conn.Exec(`UPDATE notes SET folder = ?, modified_at = ? WHERE id = ?`,
		folder, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("spacestore: move note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// ListNotes returns notes in a space, optionally restricted to a folder
// subtree.
func (s *Store) ListNotes(spaceID, folder string) ([]models.Note, error) {
	q := `
		SELECT id, space_id, title, folder, content, kind, created_at, modified_at
		FROM notes WHERE space_id = ?`
	args := []any{spaceID}
	if folder != "" {
		q += ` AND (folder = ? OR folder LIKE ?)`
		args = append(args, folder, folder+"/%")
	}
	q += ` ORDER BY folder, title`

	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("spacestore: list notes: %w", err)
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

// ListFolders derives the folder set of a space from its notes' folder
// paths, including intermediate ancestors.
func (s *Store) ListFolders(spaceID string) ([]models.Folder, error) {
	rows, err := s.conn.Query(`SELECT DISTINCT folder FROM notes WHERE space_id = ? AND folder != ''`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("spacestore: list folders: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		for f != "" && f != "." {
			seen[f] = struct{}{}
			f = path.Dir(f)
			if f == "." {
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]models.Folder, 0, len(paths))
	for _, p := range paths {
		out = append(out, models.Folder{
			Path:    p,
			Name:    path.Base(p),
			Source:  models.SourceSpace,
			SpaceID: spaceID,
		})
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row *sql.Row) (*models.Note, error) {
	n, err := scanNoteRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	return n, err
}

func scanNoteRows(r rowScanner) (*models.Note, error) {
	var n models.Note
	var kind string
	if err := r.Scan(&n.ID, &n.SpaceID, &n.Title, &n.Folder, &n.Content, &kind, &n.CreatedAt, &n.ModifiedAt); err != nil {
		return nil, err
	}
	n.Source = models.SourceSpace
	n.Type = models.NoteType(kind)
	return &n, nil
}
