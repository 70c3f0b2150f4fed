package buffer

import (
	"time"

	"github.com/auralis/tiercache/internal/cache"
)

// TierStats extends a tier's occupancy with its lookup counters.
type TierStats struct {
	cache.TierStats
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats is a point-in-time view of the whole hierarchy.
type Stats struct {
	L1 TierStats
	L2 TierStats
	L3 TierStats

	TotalSizeMB    float64
	TotalMaxSizeMB float64
	TotalEntries   int
	TotalHits      int64
	TotalMisses    int64 // Lookups that missed every tier
	HitRate        float64

	PredictionAccuracy float64
	SessionSwitches    int
	SessionDuration    time.Duration
}

// Tiers returns the per-tier stats in lookup order.
func (s Stats) Tiers() []TierStats {
	return []TierStats{s.L1, s.L2, s.L3}
}

// CacheStats returns statistics for every tier and the session.
func (m *Manager) CacheStats() Stats {
	var tiers [cache.NumLevels]TierStats
	var s Stats

	for i, tier := range m.tiers {
		ts := TierStats{
			TierStats: tier.Stats(),
			Hits:      m.hits[i].Load(),
			Misses:    m.misses[i].Load(),
		}
		ts.HitRate = rate(ts.Hits, ts.Misses)
		tiers[i] = ts

		s.TotalSizeMB += ts.SizeMB
		s.TotalMaxSizeMB += ts.MaxSizeMB
		s.TotalEntries += ts.Entries
		s.TotalHits += ts.Hits
	}
	s.L1, s.L2, s.L3 = tiers[cache.LevelL1], tiers[cache.LevelL2], tiers[cache.LevelL3]
	s.TotalMisses = m.totalMisses.Load()
	s.HitRate = rate(s.TotalHits, s.TotalMisses)
	s.PredictionAccuracy = m.predictor.Accuracy()

	m.mu.Lock()
	s.SessionSwitches = m.sessionSwitches
	s.SessionDuration = m.now().Sub(m.sessionStart)
	m.mu.Unlock()

	return s
}

func rate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
