package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStorage keeps entries in process memory. Useful for tests and
// development; production deployments use the Postgres or Mongo backends.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStorage) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if s.entries[i].UserID == userID {
			result = append(result, s.entries[i])
		}
	}
	return result, nil
}

// All returns a copy of every stored entry in insertion order.
func (s *MemoryStorage) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
