package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduper is an in-process Deduper for tests and single-node dev runs.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (d *MemoryDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyKey
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expires, ok := d.seen[eventID]; ok && now.Before(expires) {
		return true, nil
	}
	d.seen[eventID] = now.Add(d.ttl)

	// Opportunistic sweep keeps the map from growing unbounded.
	for id, expires := range d.seen {
		if now.After(expires) {
			delete(d.seen, id)
		}
	}
	return false, nil
}

// MemoryLocker is an in-process Locker for tests and single-node dev runs.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(ctx context.Context) error, error) {
	if name == "" {
		return nil, ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if expires, ok := l.locks[name]; ok && l.now().Before(expires) {
		return nil, ErrLockHeld
	}
	l.locks[name] = l.now().Add(ttl)

	release := func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locks, name)
		return nil
	}
	return release, nil
}
