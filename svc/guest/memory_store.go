package guest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*GuestSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*GuestSession)}
}

func (s *MemoryStore) Create(_ context.Context, sess *GuestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.SessionID]; ok {
		return nil
	}
	cp := *sess
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*GuestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) MarkConsumed(_ context.Context, sessionID string, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.ConsumedBy != nil {
		return ErrSessionConsumed
	}
	uid, ts := userID, at
	sess.ConsumedBy = &uid
	sess.ConsumedAt = &ts
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.ConsumedBy == nil && sess.ExpiresAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListPending(_ context.Context, now time.Time) ([]GuestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []GuestSession
	for _, sess := range s.sessions {
		if sess.ConsumedBy == nil && !sess.ExpiresAt.Before(now) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
