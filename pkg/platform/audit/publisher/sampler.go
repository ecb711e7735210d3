package publisher

import (
	"math/rand/v2"
	"sync"
)

// Sampler provides configurable sampling for operations events.
// High-volume events can be sampled down to reduce storage and processing costs.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
}

// NewSampler creates a sampler with the given default rate in [0, 1].
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[string]float64),
	}
}

// ShouldSample returns true if the event should be kept.
func (s *Sampler) ShouldSample(action string) bool {
	rate := s.rateFor(action)
	if rate >= 1 {
		return true
	}
	return rand.Float64() < rate //nolint:gosec // sampling doesn't need crypto rand
}

// SetRate overrides the default for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[action] = clampRate(rate)
}

func (s *Sampler) rateFor(action string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rateByAction[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
