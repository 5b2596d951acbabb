// Package watch observes the vault directory for changes made outside the
// server (other editors, sync clients) and keeps the listing cache honest.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/plumehq/plume/internal/search"
)

// EventFunc is called after each observed vault change.
// kind is one of "created", "updated", "deleted".
type EventFunc func(kind string, path string)

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. Every relevant event invalidates
// the listing cache wholesale and calls cb (if non-nil).
//
// New directories created at runtime are automatically added to the watch
// list. Rename events fire on the OLD path only; the new path arrives as a
// separate Create event, so a short debounced settle pass invalidates the
// cache once more after a rename burst.
func Watch(ctx context.Context, listing *search.Listing, vaultRoot string, logger *slog.Logger, cb EventFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	scheduleSettle := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(200 * time.Millisecond)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			listing.Invalidate()
			logger.Debug("watcher: settled after rename burst")

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories: add to watcher and announce any notes
			// already inside them.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					listing.Invalidate()
					announceDir(vaultRoot, absPath, cb)
					continue
				}
			}

			if !isNoteFile(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				listing.Invalidate()
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: change", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				listing.Invalidate()
				logger.Debug("watcher: removed", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				listing.Invalidate()
				logger.Debug("watcher: rename old gone", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}
				scheduleSettle()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// announceDir reports notes found in a newly created directory, so a
// directory moved into the vault shows up as created notes.
func announceDir(vaultRoot, dirPath string, cb EventFunc) {
	if cb == nil {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isNoteFile(path) {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}
		cb("created", filepath.ToSlash(rel))
		return nil
	})
}

func isNoteFile(p string) bool {
	return strings.HasSuffix(p, ".md") || strings.HasSuffix(p, ".txt")
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
