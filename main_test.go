package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/auralis/tiercache/internal/predictor"
	"github.com/auralis/tiercache/internal/preset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionScript = `
tracks:
  1: /music/one.flac
steps:
  - at: 0s
    play: {track: 1, position: 0, preset: adaptive, intensity: 1.0}
  - at: 1s
    lookup: {track: 1, chunk: 0, preset: adaptive, intensity: 1.0}
  - at: 1s
    lookup: {track: 1, chunk: 0, preset: warm, intensity: 1.0}
  - at: 2s
    lookup: {track: 1, chunk: 5, preset: adaptive, intensity: 1.0}
  - at: 3s
    delete: 1
  - at: 4s
    lookup: {track: 1, chunk: 0, preset: adaptive, intensity: 1.0}
`

func noColor(t *testing.T) {
	t.Helper()
	prev := runtimeEnv
	runtimeEnv.NoColor = true
	t.Cleanup(func() { runtimeEnv = prev })
}

func newTestManager(clock *scriptClock) *buffer.Manager {
	return buffer.New(
		buffer.WithClock(clock.Now),
		buffer.WithPredictor(predictor.New(predictor.WithClock(clock.Now))),
	)
}

func TestParseScript(t *testing.T) {
	s, err := parseScript([]byte(sessionScript))
	require.NoError(t, err)
	require.Len(t, s.Steps, 6)

	assert.Equal(t, "/music/one.flac", s.Tracks[1])
	path, ok := s.Tracks.TrackPath(1)
	assert.True(t, ok)
	assert.Equal(t, "/music/one.flac", path)
	_, ok = s.Tracks.TrackPath(2)
	assert.False(t, ok)

	play := s.Steps[0].Play
	require.NotNil(t, play)
	assert.Equal(t, preset.Adaptive, play.Preset)
	assert.InDelta(t, 1.0, play.Intensity, 1e-9)

	assert.Equal(t, 2*time.Second, s.Steps[3].At)
	require.NotNil(t, s.Steps[4].Delete)
	assert.Equal(t, int64(1), *s.Steps[4].Delete)
}

func TestParseScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		is     error
	}{
		{
			name: "out of order",
			script: `
steps:
  - at: 2s
    clear: true
  - at: 1s
    clear: true
`,
			is: errScriptOrder,
		},
		{
			name: "unknown preset",
			script: `
steps:
  - at: 0s
    play: {track: 1, position: 0, preset: loud}
`,
			is: preset.ErrUnknownPreset,
		},
		{
			name:   "not yaml",
			script: "steps: [",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseScript([]byte(tc.script))
			require.Error(t, err)
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
		})
	}
}

func TestRunScript(t *testing.T) {
	noColor(t)

	s, err := parseScript([]byte(sessionScript))
	require.NoError(t, err)

	clock := newScriptClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	m := newTestManager(clock)

	var out bytes.Buffer
	res, err := runScript(context.Background(), m, clock, s, &out)
	require.NoError(t, err)

	assert.Equal(t, simResult{Lookups: 4, Hits: 2}, res)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "hit L1")
	assert.Contains(t, lines[1], "miss")
	assert.Contains(t, lines[2], "hit L3")
	assert.Contains(t, lines[3], "track 1 deleted")
	assert.Contains(t, lines[4], "miss")

	assert.Equal(t, clock.start.Add(4*time.Second), clock.Now())
}

func TestRunScriptCanceled(t *testing.T) {
	s, err := parseScript([]byte(sessionScript))
	require.NoError(t, err)

	clock := newScriptClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runScript(ctx, newTestManager(clock), clock, s, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCommand(t *testing.T) {
	noColor(t)

	clock := newScriptClock(time.Now())
	m := newTestManager(clock)
	tracks := lookupFunc(func(path string) (int64, bool) {
		return 7, path == "/music/seven.flac"
	})
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runCommand(ctx, m, tracks, "play /music/seven.flac 45 warm 0.8", &out))

	st := m.State()
	assert.Equal(t, int64(7), st.TrackID)
	assert.Equal(t, 1, st.Chunk)
	assert.Equal(t, preset.Warm, st.Preset)

	require.NoError(t, runCommand(ctx, m, tracks, "lookup 7 1 warm 0.8", &out))
	require.NoError(t, runCommand(ctx, m, tracks, "lookup 7 1 warm", &out))
	assert.Equal(t, "hit L1\nmiss\n", out.String())

	for _, bad := range []string{
		"play 7 abc warm",
		"play 7 10",
		"lookup 7 -1 warm",
		"lookup /music/other.flac 1 warm",
		"play 7 10 warm loud",
		"rewind 7",
	} {
		assert.ErrorIs(t, runCommand(ctx, m, tracks, bad, &out), errBadCommand, bad)
	}
	assert.ErrorIs(t, runCommand(ctx, m, tracks, "play 7 10 loud", &out), preset.ErrUnknownPreset)
}

func TestReadCommands(t *testing.T) {
	noColor(t)

	clock := newScriptClock(time.Now())
	m := newTestManager(clock)

	in := strings.NewReader("# warm up\nplay 3 0 bright\n\nlookup 3 0 bright\nbogus\nclear\nlookup 3 0 bright\n")
	var out bytes.Buffer
	readCommands(context.Background(), m, nil, in, &out)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "hit L1", lines[0])
	assert.Contains(t, lines[1], "unknown command")
	assert.Equal(t, "miss", lines[2])
}

func TestRenderStats(t *testing.T) {
	noColor(t)

	clock := newScriptClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	m := newTestManager(clock)
	m.UpdatePosition(context.Background(), 1, 0, preset.Adaptive, 1.0)
	m.IsChunkCached(1, preset.Adaptive, 0, 1.0)

	out := renderStats(m.CacheStats(), 80)

	assert.True(t, strings.HasPrefix(out, "Chunk cache\n"))
	for _, tier := range []string{"L1", "L2", "L3", "all"} {
		assert.Contains(t, out, "\n"+tier+" ")
	}
	assert.Contains(t, out, "18 MiB")
	assert.Contains(t, out, "prediction accuracy: 0%")
	assert.NotContains(t, out, "\x1b[")
}

func TestWriteSnapshot(t *testing.T) {
	noColor(t)

	p := predictor.New()
	p.RecordSwitch(preset.Adaptive, preset.Warm)
	p.RecordSwitch(preset.Adaptive, preset.Warm)
	p.RecordSwitch(preset.Warm, preset.Bright)
	p.UpdateAccuracy(true)
	p.UpdateAccuracy(false)

	var out bytes.Buffer
	writeSnapshot(&out, "/tmp/predictor.snap", p.Snapshot())

	s := out.String()
	assert.Contains(t, s, "snapshot: /tmp/predictor.snap")
	assert.Contains(t, s, "1 of 2 (50%)")
	assert.Regexp(t, `adaptive\s+warm\s+2\s+66\.7%`, s)
	assert.Regexp(t, `warm\s+bright\s+1\s+33\.3%`, s)
	assert.Contains(t, s, "recent switches: 3")
}

type lookupFunc func(path string) (int64, bool)

func (f lookupFunc) Lookup(path string) (int64, bool) { return f(path) }
