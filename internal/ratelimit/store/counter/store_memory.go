// Package counter provides fixed-window request counters.
package counter

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type entry struct {
	count     int
	expiresAt time.Time
}

// InMemory is a process-local counter for single-replica deployments, tests,
// and as the fallback while the shared store is unreachable.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]*entry
	ops     int
	now     func() time.Time
}

type Option func(*InMemory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *InMemory) { s.now = now }
}

func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops++
	if s.ops%sweepEvery == 0 {
		s.sweep(now)
	}

	e, ok := s.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = &entry{expiresAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Len returns the number of live keys.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(s.now())
	return len(s.entries)
}

// sweep drops expired keys. Callers must hold s.mu.
func (s *InMemory) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
