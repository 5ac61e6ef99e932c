package recording

import "sync"

// QuestionRegistry is the process-wide set of recorded unknown questions.
// Keys are never removed and raw questions keep first-seen order.
type QuestionRegistry struct {
	mu   sync.Mutex
	keys map[string]struct{}
	raw  []string
}

// NewQuestionRegistry returns an empty registry.
func NewQuestionRegistry() *QuestionRegistry {
	return &QuestionRegistry{keys: make(map[string]struct{})}
}

// Contains reports whether key has been recorded.
func (r *QuestionRegistry) Contains(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[key]
	return ok
}

// Add records raw under key unless the key is already present. The check and
// the insert happen under one lock. The returned slice is a copy.
func (r *QuestionRegistry) Add(key, raw string) (bool, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key]; ok {
		return false, r.snapshotLocked()
	}
	r.keys[key] = struct{}{}
	r.raw = append(r.raw, raw)
	return true, r.snapshotLocked()
}

// Questions returns the raw questions in first-seen order.
func (r *QuestionRegistry) Questions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Len returns the number of recorded questions.
func (r *QuestionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.raw)
}

func (r *QuestionRegistry) snapshotLocked() []string {
	out := make([]string, len(r.raw))
	copy(out, r.raw)
	return out
}
