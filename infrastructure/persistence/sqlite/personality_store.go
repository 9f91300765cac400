package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
)

// PersonalityStore implements ports.PersonalityStore over SQLite. Every
// version is kept; reads return the highest.
type PersonalityStore struct {
	db *sql.DB
}

// GetLatestMetrics returns the newest metrics version, or nil
func (s *PersonalityStore) GetLatestMetrics(ctx context.Context, particleID valueobjects.ParticleID) (*entities.PersonalityMetrics, error) {
	var (
		version    int
		traits     valueobjects.TraitVector
		recordedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, curiosity, social_affinity, aggression, stability, growth_potential, recorded_at
		 FROM personality_metrics WHERE particle_id = ? ORDER BY version DESC LIMIT 1`,
		particleID.String(),
	).Scan(&version, &traits.Curiosity, &traits.SocialAffinity, &traits.Aggression, &traits.Stability, &traits.GrowthPotential, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get personality metrics: %w", err)
	}
	return entities.NewPersonalityMetrics(particleID, traits, version, fromMillis(recordedAt))
}

// SaveMetrics inserts a new metrics version; rewriting a version fails
func (s *PersonalityStore) SaveMetrics(ctx context.Context, metrics *entities.PersonalityMetrics) error {
	t := metrics.Traits()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO personality_metrics
		 (particle_id, version, curiosity, social_affinity, aggression, stability, growth_potential, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		metrics.ParticleID().String(), metrics.Version(),
		t.Curiosity, t.SocialAffinity, t.Aggression, t.Stability, t.GrowthPotential,
		toMillis(metrics.RecordedAt()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("metrics version %d already stored for particle %s", metrics.Version(), metrics.ParticleID())
		}
		return fmt.Errorf("save personality metrics: %w", err)
	}
	return nil
}
