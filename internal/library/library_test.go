package library

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind string
	id   int64
	path string
}

type recordingHandler struct {
	mu     sync.Mutex
	events []event
}

func (h *recordingHandler) HandleTrackDeleted(id int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "deleted", id: id})
	return 1
}

func (h *recordingHandler) HandleTrackModified(id int64, path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "modified", id: id, path: path})
	return 1
}

func (h *recordingHandler) snapshot() []event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event(nil), h.events...)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
}

func TestIndex(t *testing.T) {
	idx := NewIndex()

	id, created := idx.Add("/music/a.flac")
	assert.True(t, created)
	assert.Equal(t, int64(1), id)

	again, created := idx.Add("/music/./a.flac")
	assert.False(t, created, "paths are cleaned before indexing")
	assert.Equal(t, id, again)

	b, _ := idx.Add("/music/b.wav")
	path, ok := idx.TrackPath(b)
	assert.True(t, ok)
	assert.Equal(t, "/music/b.wav", path)

	removed, ok := idx.Remove("/music/a.flac")
	assert.True(t, ok)
	assert.Equal(t, id, removed)
	_, ok = idx.TrackPath(id)
	assert.False(t, ok)

	c, _ := idx.Add("/music/a.flac")
	assert.NotEqual(t, id, c, "ids are never reused")
	assert.Equal(t, []Track{{ID: b, Path: "/music/b.wav"}, {ID: c, Path: "/music/a.flac"}}, idx.Tracks())
}

func TestIndex_IsAudio(t *testing.T) {
	idx := NewIndex("FLAC", ".wav")

	tests := []struct {
		path string
		want bool
	}{
		{"song.flac", true},
		{"SONG.FLAC", true},
		{"take.wav", true},
		{"song.mp3", false},
		{"song.flac.scores.yaml", false},
		{"README", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, idx.IsAudio(tt.path), tt.path)
	}
}

func TestIndex_Scan(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.flac"))
	touch(t, filepath.Join(dir, "album", "b.mp3"))
	touch(t, filepath.Join(dir, "album", "cover.jpg"))
	touch(t, filepath.Join(dir, ".hidden", "c.flac"))

	idx := NewIndex()
	dirs, added, err := idx.Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	assert.ElementsMatch(t, []string{dir, filepath.Join(dir, "album")}, dirs)
	_, ok := idx.Lookup(filepath.Join(dir, "album", "b.mp3"))
	assert.True(t, ok)

	_, added, err = idx.Scan(dir)
	require.NoError(t, err)
	assert.Zero(t, added, "rescanning finds nothing new")

	_, _, err = idx.Scan(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func newTestWatcher(t *testing.T, idx *Index, h Handler) *Watcher {
	t.Helper()
	w, err := NewWatcher(idx, h, WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWatcher_HandleEvent(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex()
	known, _ := idx.Add(filepath.Join(dir, "known.flac"))

	h := &recordingHandler{}
	w := newTestWatcher(t, idx, h)

	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "known.flac"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "unknown.flac"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "new.flac"), Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "known.flac"), Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "known.flac"), Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "known.flac"), Op: fsnotify.Remove})

	assert.Equal(t, []event{
		{kind: "modified", id: known, path: filepath.Join(dir, "known.flac")},
		{kind: "modified", id: known, path: filepath.Join(dir, "known.flac")},
		{kind: "deleted", id: known},
	}, h.snapshot())

	_, ok := idx.Lookup(filepath.Join(dir, "new.flac"))
	assert.True(t, ok, "new audio files are indexed")
	_, ok = idx.Lookup(filepath.Join(dir, "notes.txt"))
	assert.False(t, ok)
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.flac")
	touch(t, path)

	idx := NewIndex()
	dirs, _, err := idx.Scan(dir)
	require.NoError(t, err)
	id, _ := idx.Lookup(path)

	h := &recordingHandler{}
	w := newTestWatcher(t, idx, h)
	for _, d := range dirs {
		require.NoError(t, w.Add(d))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		for _, e := range h.snapshot() {
			if e.kind == "deleted" && e.id == id {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
