package feature

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryProvider is an in-memory Provider implementation. It is the only
// backend the application needs: flags ship with the deployment (YAML file)
// and are replaced atomically on restart.
type MemoryProvider struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewMemoryProvider creates a provider seeded with the given flags.
func NewMemoryProvider(initial ...*Flag) (*MemoryProvider, error) {
	p := &MemoryProvider{flags: make(map[string]*Flag)}
	for _, flag := range initial {
		if flag == nil {
			continue
		}
		if flag.Name == "" {
			return nil, ErrInvalidFlag
		}
		p.flags[flag.Name] = cloneFlag(flag)
	}
	return p, nil
}

func (p *MemoryProvider) IsEnabled(ctx context.Context, name string) (bool, error) {
	p.mu.RLock()
	flag, ok := p.flags[name]
	p.mu.RUnlock()

	if !ok {
		return false, ErrFlagNotFound
	}
	if !flag.Enabled {
		return false, nil
	}
	if flag.Strategy == nil {
		return true, nil
	}
	return flag.Strategy.Evaluate(ctx)
}

func (p *MemoryProvider) GetFlag(ctx context.Context, name string) (*Flag, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	flag, ok := p.flags[name]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return cloneFlag(flag), nil
}

func (p *MemoryProvider) ListFlags(ctx context.Context, tags ...string) ([]*Flag, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*Flag, 0, len(p.flags))
	for _, flag := range p.flags {
		if len(tags) > 0 && !hasAnyTag(flag, tags) {
			continue
		}
		result = append(result, cloneFlag(flag))
	}
	return result, nil
}

func (p *MemoryProvider) SetFlag(ctx context.Context, flag *Flag) error {
	if flag == nil || flag.Name == "" {
		return ErrInvalidFlag
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stored := cloneFlag(flag)
	stored.UpdatedAt = time.Now()
	p.flags[flag.Name] = stored
	return nil
}

func (p *MemoryProvider) DeleteFlag(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.flags[name]; !ok {
		return ErrFlagNotFound
	}
	delete(p.flags, name)
	return nil
}

func cloneFlag(flag *Flag) *Flag {
	c := *flag
	if flag.Tags != nil {
		c.Tags = slices.Clone(flag.Tags)
	}
	return &c
}

func hasAnyTag(flag *Flag, tags []string) bool {
	for _, tag := range tags {
		if slices.Contains(flag.Tags, tag) {
			return true
		}
	}
	return false
}
