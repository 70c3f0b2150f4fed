// Package library tracks the audio files of a music directory and turns
// file system changes into track lifecycle events.
package library

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultExtensions are the audio file types indexed when none are given.
var DefaultExtensions = []string{".flac", ".wav", ".mp3", ".ogg", ".m4a", ".aiff"}

// Track is an indexed audio file.
type Track struct {
	ID   int64
	Path string
}

// Index assigns stable track ids to audio file paths. It is safe for
// concurrent use.
type Index struct {
	mu     sync.RWMutex
	nextID int64
	byPath map[string]int64
	byID   map[int64]string
	exts   map[string]bool
}

// NewIndex creates an empty index accepting the given extensions, or
// DefaultExtensions when none are given.
func NewIndex(exts ...string) *Index {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	idx := &Index{
		nextID: 1,
		byPath: make(map[string]int64),
		byID:   make(map[int64]string),
		exts:   make(map[string]bool, len(exts)),
	}
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		idx.exts[ext] = true
	}
	return idx
}

// IsAudio reports whether path has an indexed extension.
func (i *Index) IsAudio(path string) bool {
	return i.exts[strings.ToLower(filepath.Ext(path))]
}

// Add indexes path and returns its id. created is false when the path was
// already known.
func (i *Index) Add(path string) (id int64, created bool) {
	path = filepath.Clean(path)

	i.mu.Lock()
	defer i.mu.Unlock()

	if id, ok := i.byPath[path]; ok {
		return id, false
	}
	id = i.nextID
	i.nextID++
	i.byPath[path] = id
	i.byID[id] = path
	return id, true
}

// Lookup returns the id of path.
func (i *Index) Lookup(path string) (int64, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	id, ok := i.byPath[filepath.Clean(path)]
	return id, ok
}

// TrackPath returns the file of a track.
func (i *Index) TrackPath(id int64) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	path, ok := i.byID[id]
	return path, ok
}

// Remove forgets path and returns the id it had.
func (i *Index) Remove(path string) (int64, bool) {
	path = filepath.Clean(path)

	i.mu.Lock()
	defer i.mu.Unlock()

	id, ok := i.byPath[path]
	if !ok {
		return 0, false
	}
	delete(i.byPath, path)
	delete(i.byID, id)
	return id, true
}

// Len returns the number of indexed tracks.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.byPath)
}

// Tracks returns every indexed track ordered by id.
func (i *Index) Tracks() []Track {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]Track, 0, len(i.byID))
	for id, path := range i.byID {
		out = append(out, Track{ID: id, Path: path})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Scan walks dir and indexes every audio file below it. It returns the
// directories visited so a watcher can follow them, and the number of newly
// indexed tracks.
func (i *Index) Scan(dir string) (dirs []string, added int, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		}
		if !i.IsAudio(path) {
			return nil
		}
		if _, created := i.Add(path); created {
			added++
		}
		return nil
	})
	if err != nil {
		return nil, added, fmt.Errorf("unable to scan library: %w", err)
	}
	return dirs, added, nil
}
