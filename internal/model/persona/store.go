package persona

// Store exposes the loaded persona to handlers and services.
type Store interface {
	Get() Persona
}

// MemoryStore implements Store over a single persona fixed at construction.
type MemoryStore struct {
	item Persona
}

// NewMemoryStore returns a MemoryStore holding a private copy of p.
func NewMemoryStore(p Persona) *MemoryStore {
	p.Suggestions = append([]string(nil), p.Suggestions...)
	return &MemoryStore{item: p}
}

// Get returns a copy so callers cannot mutate the stored suggestions.
func (s *MemoryStore) Get() Persona {
	item := s.item
	item.Suggestions = append([]string(nil), s.item.Suggestions...)
	return item
}
