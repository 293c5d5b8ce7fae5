// Package clipstore holds recently observed clipboard events inside the
// correlation window. Expiry is lazy: entries older than the window are
// pruned on every Record or HasRecent call, so no timer is needed.
package clipstore

import (
	"sync"
	"time"

	"github.com/ecovive/leakwatch/internal/model"
)

// DefaultWindow is the correlation window: a clipboard action renders
// subsequent network requests suspicious for this long.
const DefaultWindow = 5 * time.Second

// Store is a bounded, time-windowed holding area for clipboard events,
// ordered by arrival. Recency alone determines correlation eligibility;
// no per-event matching by host, extension, or content is performed.
type Store struct {
	mu     sync.Mutex
	window time.Duration
	events []model.ClipboardEvent
}

// New creates a Store with the given window. window <= 0 uses DefaultWindow.
func New(window time.Duration) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{window: window}
}

// Window returns the configured correlation window.
func (s *Store) Window() time.Duration {
	return s.window
}

// Record appends an event in arrival order and prunes expired entries.
func (s *Store) Record(ev model.ClipboardEvent, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.prune(now)
}

// HasRecent reports whether at least one retained event satisfies
// now − ts < window. Prunes as a side effect.
func (s *Store) HasRecent(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	return len(s.events) > 0
}

// Recent returns the retained, unexpired events in arrival order.
func (s *Store) Recent(now time.Time) []model.ClipboardEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(now)
	out := make([]model.ClipboardEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of retained events, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// prune drops entries with now − ts >= window. Caller holds the lock.
func (s *Store) prune(now time.Time) {
	kept := s.events[:0]
	for _, ev := range s.events {
		if now.Sub(ev.Timestamp) < s.window {
			kept = append(kept, ev)
		}
	}
	// Zero the tail so dropped events are collectable.
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = model.ClipboardEvent{}
	}
	s.events = kept
}
