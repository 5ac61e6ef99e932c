package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the per-session contact recording state.
type State struct {
	NotificationSent bool
	RecordedEmail    string
	EmailChangeCount int
	OverrideUsed     bool
}

// Options bounds how long and how many sessions are kept.
type Options struct {
	// TTL evicts sessions idle for longer than this. Zero disables idle eviction.
	TTL time.Duration
	// MaxEntries caps the number of sessions; creating one more evicts the least
	// recently used. Zero disables it.
	MaxEntries int
}

type entry struct {
	mu       sync.Mutex
	state    State
	lastSeen time.Time
	removed  bool
}

// Store keeps transient session state in memory with one lock per session.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	opts    Options
	now     func() time.Time
}

// NewStore bootstraps an empty in-memory store.
func NewStore(opts Options) *Store {
	return &Store{
		entries: make(map[string]*entry),
		opts:    opts,
		now:     time.Now,
	}
}

// NewID mints an opaque session identifier for callers that did not supply one.
func NewID() string {
	return uuid.NewString()
}

// Update runs fn with exclusive access to the state of id, creating it on first use.
// Calls for the same id are serialized; calls for different ids run in parallel.
func (s *Store) Update(id string, fn func(*State)) {
	for {
		e := s.acquire(id)
		e.mu.Lock()
		if e.removed {
			// swept between lookup and lock, start over on a fresh entry
			e.mu.Unlock()
			continue
		}
		fn(&e.state)
		e.mu.Unlock()
		return
	}
}

func (s *Store) acquire(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		if s.opts.MaxEntries > 0 && len(s.entries) >= s.opts.MaxEntries {
			s.evictOldestLocked()
		}
		e = &entry{}
		s.entries[id] = e
	}
	e.lastSeen = s.now()
	return e
}

// evictOldestLocked drops the least recently seen session that is not mid-update.
func (s *Store) evictOldestLocked() {
	var (
		oldestID string
		oldest   *entry
	)
	for id, e := range s.entries {
		if oldest == nil || e.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, e
		}
	}
	if oldest != nil && s.evictLocked(oldestID, oldest) {
		return
	}
	// the oldest is busy, fall back to any idle entry
	for id, e := range s.entries {
		if s.evictLocked(id, e) {
			return
		}
	}
}

// Snapshot returns a copy of the state for id.
func (s *Store) Snapshot(id string) (State, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return State{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts idle sessions and trims the store to MaxEntries, returning the number removed.
// Sessions whose state is being updated at that moment are skipped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	if s.opts.TTL > 0 {
		for id, e := range s.entries {
			if now.Sub(e.lastSeen) > s.opts.TTL && s.evictLocked(id, e) {
				removed++
			}
		}
	}

	if s.opts.MaxEntries <= 0 || len(s.entries) <= s.opts.MaxEntries {
		return removed
	}

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.entries[ids[i]].lastSeen.Before(s.entries[ids[j]].lastSeen)
	})

	for _, id := range ids {
		if len(s.entries) <= s.opts.MaxEntries {
			break
		}
		if s.evictLocked(id, s.entries[id]) {
			removed++
		}
	}
	return removed
}

func (s *Store) evictLocked(id string, e *entry) bool {
	if !e.mu.TryLock() {
		return false
	}
	e.removed = true
	e.mu.Unlock()
	delete(s.entries, id)
	return true
}
