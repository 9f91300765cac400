package cache

import (
	"context"
	"time"

	"particle-universe/application/ports"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"

	"go.uber.org/zap"
)

// CachingPersonalityStore decorates a PersonalityStore with a read-through
// cache. Absence is not cached, so freshly seeded metrics show up at once.
type CachingPersonalityStore struct {
	inner  ports.PersonalityStore
	cache  ports.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingPersonalityStore wraps inner with cache
func NewCachingPersonalityStore(inner ports.PersonalityStore, cache ports.Cache, ttl time.Duration, logger *zap.Logger) *CachingPersonalityStore {
	return &CachingPersonalityStore{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func personalityKey(id valueobjects.ParticleID) string {
	return "personality:" + id.String()
}

// GetLatestMetrics serves from cache, falling back to the inner store
func (s *CachingPersonalityStore) GetLatestMetrics(ctx context.Context, particleID valueobjects.ParticleID) (*entities.PersonalityMetrics, error) {
	key := personalityKey(particleID)
	if cached, ok := s.cache.Get(ctx, key); ok {
		if m, ok := cached.(*entities.PersonalityMetrics); ok {
			return m, nil
		}
	}

	m, err := s.inner.GetLatestMetrics(ctx, particleID)
	if err != nil || m == nil {
		return m, err
	}

	if err := s.cache.Set(ctx, key, m, s.ttl); err != nil {
		s.logger.Debug("Failed to cache personality metrics",
			zap.String("particleID", particleID.String()),
			zap.Error(err),
		)
	}
	return m, nil
}

// SaveMetrics writes through and drops the cached entry
func (s *CachingPersonalityStore) SaveMetrics(ctx context.Context, metrics *entities.PersonalityMetrics) error {
	if err := s.inner.SaveMetrics(ctx, metrics); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, personalityKey(metrics.ParticleID()))
	return nil
}
