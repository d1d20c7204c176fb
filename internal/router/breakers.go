package router

import (
	"sync"

	"github.com/inflightops/courier-router/internal/circuit"
)

// BreakerSet owns the circuit breakers for all providers. Breakers are
// created lazily on first use and live for the process lifetime; a catalog
// reload does not reset them.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
	cfg      circuit.Config
}

func NewBreakerSet(cfg circuit.Config) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*circuit.Breaker),
		cfg:      cfg,
	}
}

// Get returns (or lazily creates) the circuit breaker for a provider.
func (s *BreakerSet) Get(provider string) *circuit.Breaker {
	s.mu.RLock()
	b, ok := s.breakers[provider]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if b, ok := s.breakers[provider]; ok {
		return b
	}
	b = circuit.NewBreaker(s.cfg)
	s.breakers[provider] = b
	return b
}

// Snapshot returns a consistent metrics snapshot of every known breaker.
func (s *BreakerSet) Snapshot() map[string]circuit.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]circuit.Metrics, len(s.breakers))
	for key, b := range s.breakers {
		out[key] = b.Metrics()
	}
	return out
}

// Reset forces the provider's breaker closed. Returns false when the
// provider has never dispatched.
func (s *BreakerSet) Reset(provider string) bool {
	s.mu.RLock()
	b, ok := s.breakers[provider]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}
