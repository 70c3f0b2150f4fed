package predictor

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
)

// snapshotVersion is bumped whenever the Snapshot layout changes.
const snapshotVersion = 1

// DefaultCompressionLevel is the zstd level used for snapshot files.
const DefaultCompressionLevel = 3

// ErrSnapshotVersion is returned when a snapshot was written by an
// incompatible version.
var ErrSnapshotVersion = errors.New("unsupported predictor snapshot version")

// TransitionCount is one cell of the transition matrix.
type TransitionCount struct {
	Transition
	Count int
}

// Snapshot is the learned state of a predictor.
type Snapshot struct {
	Version            int
	Transitions        []TransitionCount
	Recent             []Switch
	PredictionsMade    int64
	PredictionsCorrect int64
	SavedAt            time.Time
}

// Snapshot captures the learned state.
func (p *BranchPredictor) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Version:            snapshotVersion,
		Transitions:        make([]TransitionCount, 0, len(p.transitions)),
		Recent:             p.recentLocked(),
		PredictionsMade:    p.predictionsMade,
		PredictionsCorrect: p.predictionsCorrect,
		SavedAt:            p.now(),
	}
	for t, n := range p.transitions {
		s.Transitions = append(s.Transitions, TransitionCount{Transition: t, Count: n})
	}
	sort.Slice(s.Transitions, func(i, j int) bool {
		a, b := s.Transitions[i], s.Transitions[j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return s
}

// Restore replaces the learned state with s.
func (p *BranchPredictor) Restore(s Snapshot) error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.transitions = make(map[Transition]int, len(s.Transitions))
	for _, tc := range s.Transitions {
		if tc.Count > 0 {
			p.transitions[tc.Transition] += tc.Count
		}
	}

	p.recentHead, p.recentLen = 0, 0
	recent := s.Recent
	if len(recent) > HistorySize {
		recent = recent[len(recent)-HistorySize:]
	}
	for _, sw := range recent {
		p.pushLocked(sw)
	}

	p.predictionsMade = s.PredictionsMade
	p.predictionsCorrect = s.PredictionsCorrect
	return nil
}

// SaveSnapshot writes the learned state to path as zstd-compressed gob.
func (p *BranchPredictor) SaveSnapshot(path string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p.Snapshot()); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(DefaultCompressionLevel)))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()
	data := encoder.EncodeAll(buf.Bytes(), nil)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Write to temp file first, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	p.logger.Debug("Saved predictor snapshot", "path", path, "bytes", len(data))
	return nil
}

// ReadSnapshot decodes a snapshot file written by SaveSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// LoadSnapshot restores learned state from path. A missing file is not an
// error: the predictor keeps its current state.
func (p *BranchPredictor) LoadSnapshot(path string) error {
	s, err := ReadSnapshot(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := p.Restore(s); err != nil {
		return err
	}

	p.logger.Debug("Loaded predictor snapshot", "path", path,
		"transitions", len(s.Transitions), "saved_at", s.SavedAt)
	return nil
}
