package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/auralis/tiercache/internal/preset"
	"gopkg.in/yaml.v3"
)

var errScriptOrder = errors.New("script steps must not go back in time")

// script is a recorded listening session. tracks maps ids to audio files so
// that content scores next to them can be used:
//
//	tracks:
//	  1: /music/one.flac
//	steps:
//	  - at: 0s
//	    play: {track: 1, position: 0, preset: adaptive, intensity: 1.0}
//	  - at: 2s
//	    lookup: {track: 1, chunk: 0, preset: warm, intensity: 1.0}
//	  - at: 5s
//	    modify: {track: 1, path: /music/one.flac}
type script struct {
	Tracks trackPaths `yaml:"tracks"`
	Steps  []step     `yaml:"steps"`
}

// trackPaths resolves track ids declared by a script.
type trackPaths map[int64]string

func (t trackPaths) TrackPath(id int64) (string, bool) {
	path, ok := t[id]
	return path, ok
}

type step struct {
	At     time.Duration `yaml:"at"`
	Play   *playStep     `yaml:"play"`
	Lookup *lookupStep   `yaml:"lookup"`
	Delete *int64        `yaml:"delete"`
	Modify *modifyStep   `yaml:"modify"`
	Clear  bool          `yaml:"clear"`
}

type playStep struct {
	Track     int64         `yaml:"track"`
	Position  float64       `yaml:"position"`
	Preset    preset.Preset `yaml:"preset"`
	Intensity float64       `yaml:"intensity"`
}

type lookupStep struct {
	Track     int64         `yaml:"track"`
	Chunk     int           `yaml:"chunk"`
	Preset    preset.Preset `yaml:"preset"`
	Intensity float64       `yaml:"intensity"`
}

type modifyStep struct {
	Track int64  `yaml:"track"`
	Path  string `yaml:"path"`
}

func readScript(path string) (script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return script{}, fmt.Errorf("unable to read script: %w", err)
	}
	return parseScript(data)
}

func parseScript(data []byte) (script, error) {
	var s script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return script{}, fmt.Errorf("unable to parse script: %w", err)
	}
	var last time.Duration
	for i, st := range s.Steps {
		if st.At < last {
			return script{}, fmt.Errorf("%w: step %d at %s follows %s", errScriptOrder, i+1, st.At, last)
		}
		last = st.At
	}
	return s, nil
}

// scriptClock is advanced by the simulation instead of wall time.
type scriptClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

func newScriptClock(start time.Time) *scriptClock {
	return &scriptClock{start: start, now: start}
}

func (c *scriptClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *scriptClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start.Add(offset)
}

type simResult struct {
	Lookups int
	Hits    int
}

// runScript replays s against m, writing one line per lookup to w.
func runScript(ctx context.Context, m *buffer.Manager, clock *scriptClock, s script, w io.Writer) (simResult, error) {
	var res simResult

	for _, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		clock.Set(st.At)
		stamp := render(labelStyle, fmt.Sprintf("%8s", st.At))

		switch {
		case st.Play != nil:
			m.UpdatePosition(ctx, st.Play.Track, st.Play.Position, st.Play.Preset, st.Play.Intensity)

		case st.Lookup != nil:
			l := st.Lookup
			hit, tier := m.IsChunkCached(l.Track, l.Preset, l.Chunk, l.Intensity)
			res.Lookups++
			outcome := render(missStyle, "miss")
			if hit {
				res.Hits++
				outcome = render(hitStyle, "hit "+tier)
			}
			fmt.Fprintf(w, "%s  track %d %-8s chunk %-3d %s\n", stamp, l.Track, l.Preset, l.Chunk, outcome)

		case st.Delete != nil:
			n := m.HandleTrackDeleted(*st.Delete)
			fmt.Fprintf(w, "%s  track %d deleted, %d chunks dropped\n", stamp, *st.Delete, n)

		case st.Modify != nil:
			n := m.HandleTrackModified(st.Modify.Track, st.Modify.Path)
			fmt.Fprintf(w, "%s  track %d modified, %d chunks dropped\n", stamp, st.Modify.Track, n)

		case st.Clear:
			m.ClearAllCaches()
			fmt.Fprintf(w, "%s  caches cleared\n", stamp)
		}
	}

	return res, nil
}
