package cache

import (
	"sort"
	"sync"
	"time"
)

// sizeEpsilon absorbs float rounding when comparing occupied size with the budget.
const sizeEpsilon = 1e-9

// Tier is one size-bounded level of the chunk cache. All access to the entry
// map goes through the tier's mutex; a tier never calls into another tier.
type Tier struct {
	name      string
	maxSizeMB float64

	entries map[Key]*Entry

	// Synchronization
	mu sync.Mutex

	evictions int64
	now       func() time.Time
}

// TierOption configures a Tier.
type TierOption func(*Tier)

// WithClock overrides the time source used to stamp accesses.
func WithClock(now func() time.Time) TierOption {
	return func(t *Tier) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTier creates an empty tier with the given budget in MB.
func NewTier(name string, maxSizeMB float64, opts ...TierOption) *Tier {
	t := &Tier{
		name:      name,
		maxSizeMB: maxSizeMB,
		entries:   make(map[Key]*Entry),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the tier name.
func (t *Tier) Name() string {
	return t.name
}

// MaxSizeMB returns the tier budget.
func (t *Tier) MaxSizeMB() float64 {
	return t.maxSizeMB
}

// Get looks up a chunk. A hit counts as an access: the entry's access count
// and last access time are updated before a copy is returned.
func (t *Tier) Get(key Key) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}

	entry.AccessCount++
	entry.LastAccess = t.now()
	return *entry, true
}

// Contains reports whether key is cached without touching access metadata.
func (t *Tier) Contains(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[key]
	return ok
}

// Add inserts an entry. Adding a key that is already cached succeeds without
// changing the stored entry. When the tier is full, the least valuable entries
// are evicted first; if no room can be made Add returns false and nothing is
// inserted.
func (t *Tier) Add(entry Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := entry.Key()
	if _, ok := t.entries[key]; ok {
		return true
	}

	if t.sizeLocked()+entry.SizeMB() > t.maxSizeMB+sizeEpsilon {
		if !t.evictLocked(entry.SizeMB()) {
			return false
		}
		// A budget below one chunk can never fit an entry, even when empty.
		if t.sizeLocked()+entry.SizeMB() > t.maxSizeMB+sizeEpsilon {
			return false
		}
	}

	if entry.LastAccess.IsZero() {
		entry.LastAccess = t.now()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = entry.LastAccess
	}

	stored := entry
	t.entries[key] = &stored
	return true
}

// EvictToMakeRoom frees at least neededMB by evicting entries in ascending
// probability, oldest access first on ties. It reports whether enough space
// was freed.
func (t *Tier) EvictToMakeRoom(neededMB float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.evictLocked(neededMB)
}

// Clear removes every entry.
func (t *Tier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[Key]*Entry)
}

// RemoveTrack removes every entry belonging to trackID and returns how many
// were removed.
func (t *Tier) RemoveTrack(trackID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key := range t.entries {
		if key.TrackID == trackID {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached chunks.
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// SizeMB returns the occupied size.
func (t *Tier) SizeMB() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sizeLocked()
}

// Entries returns a copy of every cached entry, in no particular order.
func (t *Tier) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// Stats returns tier statistics.
func (t *Tier) Stats() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := TierStats{
		Name:      t.name,
		SizeMB:    t.sizeLocked(),
		MaxSizeMB: t.maxSizeMB,
		Entries:   len(t.entries),
		Evictions: t.evictions,
	}
	if t.maxSizeMB > 0 {
		stats.Utilization = stats.SizeMB / t.maxSizeMB
	}
	if len(t.entries) > 0 {
		var total int64
		for _, e := range t.entries {
			total += e.AccessCount
		}
		stats.AvgAccessCount = float64(total) / float64(len(t.entries))
	}
	return stats
}

// sizeLocked returns the occupied size (must be called with lock held).
func (t *Tier) sizeLocked() float64 {
	return float64(len(t.entries)) * ChunkSizeMB
}

// evictLocked removes the lowest value entries until neededMB is freed
// (must be called with lock held).
func (t *Tier) evictLocked(neededMB float64) bool {
	candidates := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		candidates = append(candidates, e)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Probability != candidates[j].Probability {
			return candidates[i].Probability < candidates[j].Probability
		}
		return candidates[i].LastAccess.Before(candidates[j].LastAccess)
	})

	freed := 0.0
	victims := 0
	for _, e := range candidates {
		if freed+sizeEpsilon >= neededMB {
			break
		}
		freed += e.SizeMB()
		victims++
	}

	for _, e := range candidates[:victims] {
		delete(t.entries, e.Key())
	}
	t.evictions += int64(victims)

	return freed+sizeEpsilon >= neededMB
}
