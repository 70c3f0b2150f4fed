// Package buffer keeps the three chunk cache tiers filled ahead of playback.
//
// A Manager receives playback position updates, learns preset switches
// through a predictor.BranchPredictor and decides which (preset, chunk)
// pairs each tier should hold:
//
//	L1  hot:         current chunk and the next one, current preset plus the
//	                 likeliest switch targets
//	L2  speculative: every chunk of every predicted branch scenario
//	L3  cold:        chunks 2..9 ahead for the current preset
//
// Lookups take only tier locks and may observe a refresh in progress; the
// worst case is a miss and an on-demand render by the caller.
package buffer

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auralis/tiercache/internal/cache"
	"github.com/auralis/tiercache/internal/metrics"
	"github.com/auralis/tiercache/internal/predictor"
	"github.com/auralis/tiercache/internal/preset"
	"github.com/charmbracelet/log"
)

// Refresh parameters.
const (
	// L1PredictionThreshold is the score a predicted preset must exceed to
	// be rendered into L1.
	L1PredictionThreshold = 0.15

	// L1MaxPresets caps the presets held in L1, current one included.
	L1MaxPresets = 3

	// L1Lookahead is the number of chunks from the current one kept in L1.
	L1Lookahead = 2

	// L1PredictedProbability is the eviction weight of predicted L1 entries.
	L1PredictedProbability = 0.5

	// L3 holds offsets [L3StartOffset, L3EndOffset) for the current preset.
	L3StartOffset = 2
	L3EndOffset   = 10

	// L3Probability is the eviction weight of L3 entries.
	L3Probability = 0.8
)

// ContentInvalidator drops cached content analysis for a file.
type ContentInvalidator interface {
	InvalidateFile(path string) int
}

// PathResolver maps a track to its audio file.
type PathResolver interface {
	TrackPath(trackID int64) (string, bool)
}

// Config holds tier budgets and timing knobs.
type Config struct {
	L1SizeMB float64
	L2SizeMB float64
	L3SizeMB float64

	// ThrottleInterval is the minimum gap between accepted updates for the
	// same track.
	ThrottleInterval time.Duration

	// DebounceInterval is the minimum gap between learned preset switches.
	DebounceInterval time.Duration

	// InteractionWindow and RapidThreshold define a rapid interaction: at
	// least RapidThreshold updates within InteractionWindow.
	InteractionWindow time.Duration
	RapidThreshold    int
}

// DefaultConfig returns the standard budgets and timings.
func DefaultConfig() Config {
	return Config{
		L1SizeMB:          cache.DefaultL1SizeMB,
		L2SizeMB:          cache.DefaultL2SizeMB,
		L3SizeMB:          cache.DefaultL3SizeMB,
		ThrottleInterval:  100 * time.Millisecond,
		DebounceInterval:  500 * time.Millisecond,
		InteractionWindow: time.Second,
		RapidThreshold:    10,
	}
}

// Manager orchestrates the tiered chunk cache for one player.
type Manager struct {
	cfg Config

	tiers     [cache.NumLevels]*cache.Tier
	predictor *predictor.BranchPredictor

	content     predictor.ContentPredictor
	invalidator ContentInvalidator
	paths       PathResolver

	metrics *metrics.Collector
	logger  *log.Logger
	now     func() time.Time

	// mu guards playback state and serializes position updates. It is
	// always taken before any tier lock.
	mu sync.Mutex

	hasTrack  bool
	trackID   int64
	position  float64
	preset    preset.Preset
	intensity float64

	lastUpdate       time.Time
	lastPresetChange time.Time
	interactions     *interactionWindow

	sessionStart    time.Time
	sessionSwitches int

	// Switch targets placed in L1 by the last refresh, used to score
	// prediction accuracy when the listener actually switches.
	predicted     []preset.Preset
	havePredicted bool

	hits        [cache.NumLevels]atomic.Int64
	misses      [cache.NumLevels]atomic.Int64
	totalMisses atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the default budgets and timings.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithClock overrides the time source for the manager, its tiers and the
// predictor it creates.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics publishes cache activity to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// WithPredictor uses p instead of a fresh predictor, for example one
// restored from a snapshot.
func WithPredictor(p *predictor.BranchPredictor) Option {
	return func(m *Manager) {
		m.predictor = p
	}
}

// WithContentPredictor blends acoustic scores into L1 predictions. It needs
// a PathResolver to find the audio file of a track.
func WithContentPredictor(cp predictor.ContentPredictor) Option {
	return func(m *Manager) {
		m.content = cp
	}
}

// WithContentInvalidator is notified when a track file is modified.
func WithContentInvalidator(ci ContentInvalidator) Option {
	return func(m *Manager) {
		m.invalidator = ci
	}
}

// WithPathResolver sets the track to file mapping.
func WithPathResolver(r PathResolver) Option {
	return func(m *Manager) {
		m.paths = r
	}
}

// New creates a manager with empty tiers.
func New(opts ...Option) *Manager {
	m := &Manager{
		cfg:    DefaultConfig(),
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	budgets := [cache.NumLevels]float64{m.cfg.L1SizeMB, m.cfg.L2SizeMB, m.cfg.L3SizeMB}
	for i, level := range cache.Levels {
		m.tiers[i] = cache.NewTier(level.String(), budgets[i], cache.WithClock(m.now))
	}
	if m.predictor == nil {
		m.predictor = predictor.New(predictor.WithClock(m.now), predictor.WithLogger(m.logger))
	}
	m.interactions = newInteractionWindow(m.cfg.InteractionWindow)
	m.sessionStart = m.now()

	return m
}

// Predictor returns the branch predictor owned by the manager.
func (m *Manager) Predictor() *predictor.BranchPredictor {
	return m.predictor
}

// Tier returns the tier for level.
func (m *Manager) Tier(level cache.Level) *cache.Tier {
	return m.tiers[level]
}

// UpdatePosition reports the listener's playback state. Updates for the same
// track closer together than the throttle interval are dropped. A track
// change always applies and clears every tier. ctx bounds the content
// predictor call made while refreshing L1.
func (m *Manager) UpdatePosition(ctx context.Context, trackID int64, position float64, p preset.Preset, intensity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	trackChanged := !m.hasTrack || trackID != m.trackID

	if !trackChanged && !m.lastUpdate.IsZero() && now.Sub(m.lastUpdate) < m.cfg.ThrottleInterval {
		m.metrics.Update(metrics.UpdateThrottled)
		return
	}
	m.lastUpdate = now
	m.metrics.Update(metrics.UpdateAccepted)

	rapid := m.interactions.Add(now) >= m.cfg.RapidThreshold

	if p != m.preset && m.preset != preset.None {
		m.learnSwitchLocked(m.preset, p, now, rapid)
	}

	if trackChanged {
		cleared := m.clearTiers()
		if m.hasTrack {
			m.metrics.Invalidated(metrics.InvalidateTrackChanged, cleared)
			m.logger.Debug("Track changed, cleared cache", "from", m.trackID, "to", trackID, "chunks", cleared)
		}
	}

	m.hasTrack = true
	m.trackID = trackID
	m.position = position
	m.preset = p
	m.intensity = intensity

	chunk := chunkAt(position)

	m.logger.Debug("Position update",
		"track", trackID, "position", position, "chunk", chunk,
		"preset", p, "intensity", intensity, "rapid", rapid)

	start := m.now()
	m.refreshL1Locked(ctx, chunk)
	m.refreshL2Locked(chunk)
	m.refreshL3Locked(chunk)
	m.metrics.ObserveRefresh(m.now().Sub(start))

	for _, tier := range m.tiers {
		m.metrics.ObserveTier(tier.Stats())
	}
}

// learnSwitchLocked records from -> to unless the switch is debounced or
// part of a rapid interaction.
func (m *Manager) learnSwitchLocked(from, to preset.Preset, now time.Time, rapid bool) {
	if !m.lastPresetChange.IsZero() && now.Sub(m.lastPresetChange) < m.cfg.DebounceInterval {
		m.metrics.SwitchSkipped(metrics.SkipDebounced)
		m.logger.Debug("Preset switch debounced", "from", from, "to", to)
		return
	}
	if rapid {
		m.metrics.SwitchSkipped(metrics.SkipRapid)
		m.logger.Debug("Preset switch during rapid interaction, not learned", "from", from, "to", to)
		return
	}

	if m.havePredicted {
		m.predictor.UpdateAccuracy(containsPreset(m.predicted, to))
		m.metrics.SetAccuracy(m.predictor.Accuracy())
	}

	m.predictor.RecordSwitch(from, to)
	m.sessionSwitches++
	m.lastPresetChange = now
	m.metrics.SwitchLearned()
}

func (m *Manager) refreshL1Locked(ctx context.Context, chunk int) {
	presets := []preset.Preset{m.preset}
	for _, pred := range m.predictL1Locked(ctx, chunk) {
		if len(presets) >= L1MaxPresets {
			break
		}
		if pred.Probability > L1PredictionThreshold && pred.Preset != m.preset {
			presets = append(presets, pred.Preset)
		}
	}

	now := m.now()
	l1 := m.tiers[cache.LevelL1]
	for offset := 0; offset < L1Lookahead; offset++ {
		for _, p := range presets {
			prob := L1PredictedProbability
			if p == m.preset {
				prob = 1.0
			}
			l1.Add(cache.NewEntry(m.trackID, p, chunk+offset, m.intensity, prob, now))
		}
	}

	m.predicted = append(m.predicted[:0], presets[1:]...)
	m.havePredicted = true
}

func (m *Manager) predictL1Locked(ctx context.Context, chunk int) []predictor.Prediction {
	const topN = L1MaxPresets - 1

	if m.content != nil && m.paths != nil {
		if path, ok := m.paths.TrackPath(m.trackID); ok {
			return m.predictor.PredictNextPresetsWithContent(ctx, m.content, m.preset, topN, path, chunk)
		}
	}
	return m.predictor.PredictNextPresets(m.preset, topN)
}

func (m *Manager) refreshL2Locked(chunk int) {
	now := m.now()
	l2 := m.tiers[cache.LevelL2]
	for _, s := range m.predictor.PredictBranches(m.preset, chunk, m.position) {
		for c := s.Chunks.Start; c < s.Chunks.End; c++ {
			l2.Add(cache.NewEntry(m.trackID, s.Preset, c, m.intensity, s.Probability, now))
		}
	}
}

func (m *Manager) refreshL3Locked(chunk int) {
	now := m.now()
	l3 := m.tiers[cache.LevelL3]
	for offset := L3StartOffset; offset < L3EndOffset; offset++ {
		l3.Add(cache.NewEntry(m.trackID, m.preset, chunk+offset, m.intensity, L3Probability, now))
	}
}

// IsChunkCached reports whether the chunk is cached and in which tier,
// checking L1, L2 and L3 in that order. A hit counts as an access of the
// entry. Every tier probed without a hit counts a miss for that tier.
func (m *Manager) IsChunkCached(trackID int64, p preset.Preset, chunk int, intensity float64) (bool, string) {
	key := cache.MakeKey(trackID, p, intensity, chunk)

	for i, tier := range m.tiers {
		if _, ok := tier.Get(key); ok {
			m.hits[i].Add(1)
			m.metrics.Lookup(tier.Name(), true)
			return true, tier.Name()
		}
		m.misses[i].Add(1)
	}

	m.totalMisses.Add(1)
	m.metrics.Lookup("", false)
	return false, ""
}

// HandleTrackDeleted removes every cached chunk of trackID and returns how
// many entries were removed across all tiers.
func (m *Manager) HandleTrackDeleted(trackID int64) int {
	removed := m.removeTrack(trackID)
	m.metrics.Invalidated(metrics.InvalidateTrackDeleted, removed)
	m.logger.Debug("Track deleted, invalidated cache", "track", trackID, "chunks", removed)
	return removed
}

// HandleTrackModified drops the content analysis of path, then every cached
// chunk of trackID. It returns the number of cache entries removed.
func (m *Manager) HandleTrackModified(trackID int64, path string) int {
	if m.invalidator != nil && path != "" {
		n := m.invalidator.InvalidateFile(path)
		m.logger.Debug("Invalidated content analysis", "path", path, "chunks", n)
	}

	removed := m.removeTrack(trackID)
	m.metrics.Invalidated(metrics.InvalidateTrackModified, removed)
	m.logger.Debug("Track modified, invalidated cache", "track", trackID, "path", path, "chunks", removed)
	return removed
}

// ClearAllCaches empties every tier.
func (m *Manager) ClearAllCaches() {
	cleared := m.clearTiers()
	m.metrics.Invalidated(metrics.InvalidateManual, cleared)
	m.logger.Debug("Cleared all caches", "chunks", cleared)
}

// removeTrack touches one tier lock at a time.
func (m *Manager) removeTrack(trackID int64) int {
	removed := 0
	for _, tier := range m.tiers {
		removed += tier.RemoveTrack(trackID)
	}
	return removed
}

func (m *Manager) clearTiers() int {
	cleared := 0
	for _, tier := range m.tiers {
		cleared += tier.Len()
		tier.Clear()
	}
	return cleared
}

// State is the current playback state as seen by the manager.
type State struct {
	HasTrack  bool
	TrackID   int64
	Position  float64
	Chunk     int
	Preset    preset.Preset
	Intensity float64
}

// State returns the current playback state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return State{
		HasTrack:  m.hasTrack,
		TrackID:   m.trackID,
		Position:  m.position,
		Chunk:     chunkAt(m.position),
		Preset:    m.preset,
		Intensity: m.intensity,
	}
}

// chunkAt maps a playback position in seconds to its chunk index.
func chunkAt(position float64) int {
	if position <= 0 {
		return 0
	}
	return int(math.Floor(position / cache.ChunkDuration.Seconds()))
}

func containsPreset(list []preset.Preset, p preset.Preset) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
