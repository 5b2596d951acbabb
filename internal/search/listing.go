// Package search merges the local vault, the space store, and the
// external ripgrep process under one scoring model. Listings read through
// a short-TTL cache; every mutation elsewhere invalidates it.
package search

import (
	"sort"
	"strings"
	"time"

	"github.com/plumehq/plume/internal/cache"
	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/spacestore"
	"github.com/plumehq/plume/internal/storage"
)

// ListFilter scopes a listing to a folder, space, source, or note type.
// The zero value lists the whole universe.
type ListFilter struct {
	Folder  string
	SpaceID string
	Source  models.Source
	Type    models.NoteType
}

func (f ListFilter) params() map[string]any {
	return map[string]any{
		"folder": f.Folder,
		"space":  f.SpaceID,
		"source": string(f.Source),
		"type":   string(f.Type),
	}
}

// Listing serves the combined note/folder universe with TTL memoization.
// Folder structure churns less than note content, so folders get the
// longer TTL class.
type Listing struct {
	store  storage.Provider
	spaces spacestore.NoteStore

	notes   *cache.Cache[[]models.Note]
	folders *cache.Cache[[]models.Folder]

	noteTTL   time.Duration
	folderTTL time.Duration
}

// NewListing creates the listing service (nil clock means time.Now).
func NewListing(store storage.Provider, spaces spacestore.NoteStore, noteTTL, folderTTL time.Duration, clock cache.Clock) *Listing {
	if noteTTL <= 0 {
		noteTTL = 5 * time.Second
	}
	if folderTTL <= 0 {
		folderTTL = 30 * time.Second
	}
	return &Listing{
		store:     store,
		spaces:    spaces,
		notes:     cache.New[[]models.Note](clock),
		folders:   cache.New[[]models.Folder](clock),
		noteTTL:   noteTTL,
		folderTTL: folderTTL,
	}
}

// Invalidate drops every cached listing. Called by the mutation layer
// before any write reports success.
func (l *Listing) Invalidate() {
	l.notes.InvalidateAll()
	l.folders.InvalidateAll()
}

// Notes returns the filtered note universe in deterministic order.
func (l *Listing) Notes(f ListFilter) ([]models.Note, error) {
	key := cache.Key("notes", f.params())
	if v, ok := l.notes.Get(key); ok {
		return v, nil
	}

	var out []models.Note

	if f.Source == "" || f.Source == models.SourceLocal {
		local, err := l.store.List(f.Folder)
		if err != nil {
			return nil, err
		}
		out = append(out, local...)
	}

	if l.spaces != nil && (f.Source == "" || f.Source == models.SourceSpace) {
		spaceIDs := []string{f.SpaceID}
		if f.SpaceID == "" {
			ids, err := l.spaces.ListSpaces()
			if err != nil {
				return nil, err
			}
			spaceIDs = ids
		}
		for _, id := range spaceIDs {
			notes, err := l.spaces.ListNotes(id, f.Folder)
			if err != nil {
				return nil, err
			}
			out = append(out, notes...)
		}
	}

	if f.Type != "" {
		filtered := out[:0]
		for _, n := range out {
			if n.Type == f.Type {
				filtered = append(filtered, n)
			}
		}
		out = filtered
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return l.notes.Set(key, out, l.noteTTL), nil
}

// Folders returns the filtered folder universe in deterministic order.
func (l *Listing) Folders(f ListFilter) ([]models.Folder, error) {
	key := cache.Key("folders", f.params())
	if v, ok := l.folders.Get(key); ok {
		return v, nil
	}

	var out []models.Folder

	if f.Source == "" || f.Source == models.SourceLocal {
		local, err := l.store.ListFolders(0)
		if err != nil {
			return nil, err
		}
		out = append(out, local...)
	}

	if l.spaces != nil && (f.Source == "" || f.Source == models.SourceSpace) {
		spaceIDs := []string{f.SpaceID}
		if f.SpaceID == "" {
			ids, err := l.spaces.ListSpaces()
			if err != nil {
				return nil, err
			}
			spaceIDs = ids
		}
		for _, id := range spaceIDs {
			folders, err := l.spaces.ListFolders(id)
			if err != nil {
				return nil, err
			}
			out = append(out, folders...)
		}
	}

	if f.Folder != "" {
		filtered := out[:0]
		for _, fd := range out {
			if fd.Path == f.Folder || strings.HasPrefix(fd.Path, f.Folder+"/") {
				filtered = append(filtered, fd)
			}
		}
		out = filtered
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return l.folders.Set(key, out, l.folderTTL), nil
}
