package memory

import (
	"context"
	"fmt"
	"sync"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
)

// PersonalityStore keeps the latest personality metrics per particle.
// Metrics are immutable, so stored pointers are shared safely.
type PersonalityStore struct {
	mu     sync.RWMutex
	latest map[valueobjects.ParticleID]*entities.PersonalityMetrics
}

// NewPersonalityStore creates an empty in-memory personality store
func NewPersonalityStore() *PersonalityStore {
	return &PersonalityStore{
		latest: make(map[valueobjects.ParticleID]*entities.PersonalityMetrics),
	}
}

// GetLatestMetrics returns the newest metrics version, or nil
func (s *PersonalityStore) GetLatestMetrics(ctx context.Context, particleID valueobjects.ParticleID) (*entities.PersonalityMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[particleID], nil
}

// SaveMetrics stores a metrics version. Older versions than the stored one are rejected.
func (s *PersonalityStore) SaveMetrics(ctx context.Context, metrics *entities.PersonalityMetrics) error {
	if metrics == nil {
		return fmt.Errorf("metrics cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.latest[metrics.ParticleID()]; ok && current.Version() >= metrics.Version() {
		return fmt.Errorf("metrics version %d is not newer than stored version %d", metrics.Version(), current.Version())
	}
	s.latest[metrics.ParticleID()] = metrics
	return nil
}
