package library

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Handler receives track lifecycle events.
type Handler interface {
	HandleTrackDeleted(trackID int64) int
	HandleTrackModified(trackID int64, path string) int
}

// Watcher follows library directories and reports deleted and modified
// tracks to a Handler.
type Watcher struct {
	index   *Index
	handler Handler
	logger  *log.Logger
	watcher *fsnotify.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher. Directories are added with Add.
func NewWatcher(index *Index, handler Handler, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		index:   index,
		handler: handler,
		logger:  log.Default(),
		watcher: fw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add starts watching dir. fsnotify is not recursive, so every directory
// returned by Index.Scan should be added.
func (w *Watcher) Add(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	w.logger.Debug("fsnotify watching dir", "dir", dir)
	return nil
}

// Run dispatches events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		id, ok := w.index.Remove(event.Name)
		if !ok {
			return
		}
		n := w.handler.HandleTrackDeleted(id)
		w.logger.Info("Track removed", "track", id, "path", event.Name, "chunks", n)

	case event.Has(fsnotify.Create):
		if w.isDir(event.Name) {
			// Follow new sub-directories; their files arrive as their own events.
			if err := w.Add(event.Name); err != nil {
				w.logger.Warn("Could not watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
		if !w.index.IsAudio(event.Name) {
			return
		}
		id, created := w.index.Add(event.Name)
		if created {
			w.logger.Info("Track added", "track", id, "path", event.Name)
			return
		}
		// Replaced in place, e.g. by an atomic rename from a tagger.
		w.modified(id, event.Name)

	case event.Has(fsnotify.Write):
		id, ok := w.index.Lookup(event.Name)
		if !ok {
			return
		}
		w.modified(id, event.Name)
	}
}

func (w *Watcher) modified(id int64, path string) {
	n := w.handler.HandleTrackModified(id, path)
	w.logger.Info("Track modified", "track", id, "path", path, "chunks", n)
}

func (w *Watcher) isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("Could not stat path", "path", path, "error", err)
		}
		return false
	}
	return info.IsDir()
}
