package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/parser"
)

// TrashFolder is where deleted notes are parked inside the vault.
const TrashFolder = "@Trash"

// CalendarFolder holds date-named calendar notes (YYYYMMDD.md).
const CalendarFolder = "Calendar"

var calendarNameRe = regexp.MustCompile(`^\d{8}$`)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to vault directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// List walks dir (relative to root) and returns every markdown note with
// its parsed title and content.
func (f *FS) List(dir string) ([]models.Note, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.Note
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isNoteFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, f.buildNote(filepath.ToSlash(rel), data, info.ModTime()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// ListFolders returns every directory under the vault root up to maxDepth
// levels (0 means unlimited). The root itself is not included.
func (f *FS) ListFolders(maxDepth int) ([]models.Folder, error) {
	var out []models.Folder
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() || p == f.root {
			return nil
		}
		rel, _ := filepath.Rel(f.root, p)
		slash := filepath.ToSlash(rel)
		if maxDepth > 0 && strings.Count(slash, "/")+1 > maxDepth {
			return fs.SkipDir
		}
		out = append(out, models.Folder{
			Path:   slash,
			Name:   path.Base(slash),
			Source: models.SourceLocal,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list folders: %w", err)
	}
	return out, nil
}

// Read returns the note at path.
func (f *FS) Read(p string) (*models.Note, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	n := f.buildNote(filepath.ToSlash(p), data, info.ModTime())
	return &n, nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (f *FS) Write(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".plume-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete moves a note into the trash folder. The trashed filename keeps
// the basename; collisions get a numeric suffix.
func (f *FS) Delete(p string) (string, error) {
	trashed := path.Join(TrashFolder, path.Base(p))
	trashed, err := f.dedupe(trashed)
	if err != nil {
		return "", err
	}
	if _, err := f.rename(p, trashed); err != nil {
		return "", fmt.Errorf("storage: trash %s: %w", p, err)
	}
	return trashed, nil
}

// Move relocates a note into destFolder, keeping its basename.
func (f *FS) Move(p, destFolder string) (string, error) {
	newPath := path.Join(destFolder, path.Base(p))
	if _, err := f.rename(p, newPath); err != nil {
		return "", fmt.Errorf("storage: move %s: %w", p, err)
	}
	return newPath, nil
}

// Restore moves a trashed note back into destFolder (vault root when
// empty).
func (f *FS) Restore(trashedPath, destFolder string) (string, error) {
	if !strings.HasPrefix(trashedPath, TrashFolder+"/") {
		return "", fmt.Errorf("storage: %s is not in the trash", trashedPath)
	}
	newPath := path.Join(destFolder, path.Base(trashedPath))
	if _, err := f.rename(trashedPath, newPath); err != nil {
		return "", fmt.Errorf("storage: restore %s: %w", trashedPath, err)
	}
	return newPath, nil
}

func (f *FS) rename(oldPath, newPath string) (string, error) {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return "", err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return "", err
	}
	return newPath, nil
}

// dedupe appends " 2", " 3", ... before the extension until the path is
// free.
func (f *FS) dedupe(p string) (string, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s %d%s", stem, i, ext)
		abs, err := f.safePath(candidate)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}
}

func (f *FS) buildNote(rel string, data []byte, modTime time.Time) models.Note {
	res := parser.Parse(data)
	folder := path.Dir(rel)
	if folder == "." {
		folder = ""
	}

	n := models.Note{
		Filename:   rel,
		Title:      res.Title,
		Content:    string(data),
		Folder:     folder,
		Source:     models.SourceLocal,
		Type:       models.TypeNote,
		CreatedAt:  modTime,
		ModifiedAt: modTime,
	}

	base := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	switch {
	case folder == TrashFolder || strings.HasPrefix(folder, TrashFolder+"/"):
		n.Type = models.TypeTrash
	case (folder == CalendarFolder || strings.HasPrefix(folder, CalendarFolder+"/")) && calendarNameRe.MatchString(base):
		n.Type = models.TypeCalendar
		// A calendar note's creation date is its filename date.
		if ts, err := time.ParseInLocation("20060102", base, time.Local); err == nil {
			n.CreatedAt = ts
		}
	}
	if n.Title == "" {
		n.Title = base
	}
	return n
}

func isNoteFile(name string) bool {
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".txt")
}
