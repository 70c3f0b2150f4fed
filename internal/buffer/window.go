package buffer

import "time"

// interactionWindow counts timestamps within a sliding span. Timestamps are
// appended in order, so expired ones are always at the front.
type interactionWindow struct {
	span  time.Duration
	times []time.Time
	head  int
}

func newInteractionWindow(span time.Duration) *interactionWindow {
	return &interactionWindow{span: span, times: make([]time.Time, 0, 16)}
}

// Add records t and returns how many timestamps fall within span of t.
func (w *interactionWindow) Add(t time.Time) int {
	for w.head < len(w.times) && t.Sub(w.times[w.head]) >= w.span {
		w.head++
	}

	// Reclaim the expired prefix once it dominates the slice.
	if w.head > 0 && w.head >= len(w.times)/2 {
		n := copy(w.times, w.times[w.head:])
		w.times = w.times[:n]
		w.head = 0
	}

	w.times = append(w.times, t)
	return len(w.times) - w.head
}

// Len returns the number of timestamps currently held.
func (w *interactionWindow) Len() int {
	return len(w.times) - w.head
}
