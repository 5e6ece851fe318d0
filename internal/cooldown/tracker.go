// Package cooldown tracks the last time something happened per key so callers
// can suppress repeats within a minimum interval.
package cooldown

import (
	"sync"
	"time"
)

// Tracker manages per-key cooldowns
type Tracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewTracker creates a new cooldown tracker
func NewTracker() *Tracker {
	return &Tracker{
		lastSeen: make(map[string]time.Time),
	}
}

// Allow reports whether interval has elapsed since the last recorded time for
// key, and records now if it has
func (t *Tracker) Allow(key string, now time.Time, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, exists := t.lastSeen[key]
	if exists && now.Sub(last) < interval {
		return false
	}

	t.lastSeen[key] = now
	return true
}

// Active reports whether key is still cooling down at now. It does not record anything.
func (t *Tracker) Active(key string, now time.Time, interval time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, exists := t.lastSeen[key]
	return exists && now.Sub(last) < interval
}

// Record marks key as seen at now
func (t *Tracker) Record(key string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSeen[key] = now
}

// Last returns the last recorded time for key
func (t *Tracker) Last(key string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, exists := t.lastSeen[key]
	return last, exists
}

// Snapshot returns a copy of all recorded times
func (t *Tracker) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]time.Time, len(t.lastSeen))
	for k, v := range t.lastSeen {
		out[k] = v
	}
	return out
}

// Restore replaces all recorded times
func (t *Tracker) Restore(times map[string]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSeen = make(map[string]time.Time, len(times))
	for k, v := range times {
		t.lastSeen[k] = v
	}
}

// Prune forgets keys whose cooldown has fully elapsed at now
func (t *Tracker) Prune(now time.Time, interval time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, last := range t.lastSeen {
		if now.Sub(last) >= interval {
			delete(t.lastSeen, k)
			removed++
		}
	}
	return removed
}
