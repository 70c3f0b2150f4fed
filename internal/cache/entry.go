package cache

import (
	"fmt"
	"math"
	"time"

	"github.com/auralis/tiercache/internal/preset"
)

// Key identifies one logical cached unit. Intensity is stored in tenths so
// that 0.74 and 0.7 address the same chunk.
type Key struct {
	TrackID   int64
	Preset    preset.Preset
	Intensity int
	ChunkIdx  int
}

// String returns a compact human readable form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%.1f/%d", k.TrackID, k.Preset, float64(k.Intensity)/10, k.ChunkIdx)
}

// MakeKey builds the composite key for a chunk.
func MakeKey(trackID int64, p preset.Preset, intensity float64, chunkIdx int) Key {
	return Key{
		TrackID:   trackID,
		Preset:    p,
		Intensity: QuantizeIntensity(intensity),
		ChunkIdx:  chunkIdx,
	}
}

// QuantizeIntensity rounds an intensity in [0,1] to one decimal, expressed in tenths.
func QuantizeIntensity(intensity float64) int {
	return int(math.Round(intensity * 10))
}

// Entry describes one cached chunk and its access and prediction metadata.
type Entry struct {
	TrackID     int64
	Preset      preset.Preset
	ChunkIdx    int
	Intensity   float64
	Timestamp   time.Time // When the entry was created
	AccessCount int64
	LastAccess  time.Time
	Probability float64 // 1.0 for requested chunks, lower for speculative ones
}

// NewEntry creates an entry stamped with now.
func NewEntry(trackID int64, p preset.Preset, chunkIdx int, intensity, probability float64, now time.Time) Entry {
	return Entry{
		TrackID:     trackID,
		Preset:      p,
		ChunkIdx:    chunkIdx,
		Intensity:   intensity,
		Timestamp:   now,
		LastAccess:  now,
		Probability: probability,
	}
}

// Key returns the composite key of the entry.
func (e Entry) Key() Key {
	return MakeKey(e.TrackID, e.Preset, e.Intensity, e.ChunkIdx)
}

// SizeMB returns the budget charged for the entry.
func (e Entry) SizeMB() float64 {
	return ChunkSizeMB
}
