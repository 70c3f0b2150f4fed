package cache

import "time"

// ChunkSizeMB is the budget charged for one cached chunk: a stereo 30 second
// window of mastered audio. Every entry costs the same.
const ChunkSizeMB = 3.0

// ChunkDuration is the length of audio covered by one chunk index.
const ChunkDuration = 30 * time.Second

// Level identifies a tier of the hierarchy.
type Level int

const (
	// LevelL1 holds the chunks about to play, for the current and likely presets.
	LevelL1 Level = iota

	// LevelL2 holds speculative chunks from branch scenarios.
	LevelL2

	// LevelL3 holds the long range of the current preset.
	LevelL3

	// NumLevels is the number of tiers.
	NumLevels = iota
)

// Levels lists every tier in lookup order.
var Levels = []Level{LevelL1, LevelL2, LevelL3}

// String returns the tier name used in stats and lookups.
func (l Level) String() string {
	switch l {
	case LevelL1:
		return "L1"
	case LevelL2:
		return "L2"
	case LevelL3:
		return "L3"
	default:
		return "Unknown"
	}
}

// Default tier budgets in MB. Their sum is the soft ceiling of the hierarchy.
const (
	DefaultL1SizeMB = 18.0
	DefaultL2SizeMB = 36.0
	DefaultL3SizeMB = 45.0
)

// TierStats holds a point-in-time view of one tier.
type TierStats struct {
	Name           string
	SizeMB         float64 // Occupied size
	MaxSizeMB      float64 // Budget
	Entries        int     // Number of cached chunks
	Utilization    float64 // SizeMB / MaxSizeMB
	AvgAccessCount float64 // Mean access count over cached chunks
	Evictions      int64   // Chunks evicted to make room since creation
}
