// Package models defines the domain types shared across Plume.
package models

import "time"

// Source identifies which backend a note or folder lives in.
type Source string

const (
	// SourceLocal is the markdown file tree on disk.
	SourceLocal Source = "local"
	// SourceSpace is the remote-synced structured store.
	SourceSpace Source = "space"
)

// NoteType classifies a note within its source.
type NoteType string

const (
	TypeNote     NoteType = "note"
	TypeCalendar NoteType = "calendar"
	TypeTrash    NoteType = "trash"
)

// Note represents a single note from either backend.
//
// Identity is namespaced per source: local notes are identified by their
// vault-relative Filename, space notes by their store-assigned ID. The two
// must never be conflated in a lookup without a source filter.
type Note struct {
	ID         string    `json:"id,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	Folder     string    `json:"folder"`
	Source     Source    `json:"source"`
	Type       NoteType  `json:"type"`
	SpaceID    string    `json:"spaceId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Key returns the note's identity within its source namespace.
func (n Note) Key() string {
	if n.Source == SourceSpace {
		return string(SourceSpace) + ":" + n.SpaceID + ":" + n.ID
	}
	return string(SourceLocal) + ":" + n.Filename
}

// Folder represents a directory in either backend.
// Path uniqueness is scoped per (source, space) pair.
type Folder struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Source  Source `json:"source"`
	SpaceID string `json:"spaceId,omitempty"`
}

// Key returns the folder's identity within its (source, space) scope.
func (f Folder) Key() string {
	return string(f.Source) + ":" + f.SpaceID + ":" + f.Path
}

// LineMatch is a single line-level hit inside a note.
type LineMatch struct {
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SearchResult is a note plus its line matches and a derived score.
// The score is recomputed per query and never persisted.
type SearchResult struct {
	Note    Note        `json:"note"`
	Matches []LineMatch `json:"matches,omitempty"`
	Score   float64     `json:"score"`
}

// Candidate is a scored resolution candidate. Scores are in [0,1] and the
// value is created fresh per resolution call.
type Candidate struct {
	Note   *Note   `json:"note,omitempty"`
	Folder *Folder `json:"folder,omitempty"`
	Score  float64 `json:"score"`
}

// Label returns a display string for the candidate target.
func (c Candidate) Label() string {
	if c.Note != nil {
		if c.Note.Filename != "" {
			return c.Note.Filename
		}
		return c.Note.Title
	}
	if c.Folder != nil {
		return c.Folder.Path
	}
	return ""
}
