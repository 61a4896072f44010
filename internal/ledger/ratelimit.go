package ledger

import (
	"sync"
	"time"
)

// slidingWindow counts events per key over a rolling window. Old timestamps
// are pruned inline on every check, so no separate janitor is needed.
type slidingWindow struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func newSlidingWindow() *slidingWindow {
	return &slidingWindow{hits: make(map[string][]time.Time)}
}

// Allow records one event for key and reports whether it stays within
// limit events per window.
func (w *slidingWindow) Allow(key string, limit int, window time.Duration, now time.Time) bool {
	if limit <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-window)
	kept := w.hits[key][:0]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		w.hits[key] = kept
		return false
	}
	w.hits[key] = append(kept, now)
	return true
}
