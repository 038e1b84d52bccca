package profile

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]*Profile
	links  map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[uuid.UUID]*Profile),
		links:  make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) GetByUserID(_ context.Context, userID uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byUser[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetByCustomerID(_ context.Context, customerID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.byUser {
		if p.StripeCustomerID == customerID && customerID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (s *MemoryStore) Upsert(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	if existing, ok := s.byUser[p.UserID]; ok {
		cp.StripeCustomerID = existing.StripeCustomerID
	}
	s.byUser[p.UserID] = &cp
	return nil
}

func (s *MemoryStore) LinkCustomer(_ context.Context, userID uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byUser[userID]
	if !ok {
		return ErrProfileNotFound
	}
	p.StripeCustomerID = customerID
	return nil
}

func (s *MemoryStore) UnlinkCustomer(_ context.Context, userID uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byUser[userID]
	if ok && p.StripeCustomerID == customerID {
		p.StripeCustomerID = ""
	}
	return nil
}

func (s *MemoryStore) SaveCustomerLink(_ context.Context, customerID string, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.links[customerID] = userID
	return nil
}

// LinkedUser reports the tracking-table entry for a customer, for tests.
func (s *MemoryStore) LinkedUser(customerID string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.links[customerID]
	return id, ok
}
