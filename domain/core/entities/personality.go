package entities

import (
	"time"

	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"
)

// PersonalityMetrics is one versioned reading of a particle's traits.
// The personality component owns and writes these; the engine only reads
// the latest version.
type PersonalityMetrics struct {
	particleID valueobjects.ParticleID
	traits     valueobjects.TraitVector
	version    int
	recordedAt time.Time
}

// NewPersonalityMetrics creates a validated metrics reading
func NewPersonalityMetrics(particleID valueobjects.ParticleID, traits valueobjects.TraitVector, version int, recordedAt time.Time) (*PersonalityMetrics, error) {
	if particleID.IsZero() {
		return nil, pkgerrors.NewValidationError("particle ID cannot be empty")
	}
	if version < 1 {
		return nil, pkgerrors.NewValidationError("metrics version must start at 1")
	}
	if err := traits.Validate(); err != nil {
		return nil, err
	}
	return &PersonalityMetrics{
		particleID: particleID,
		traits:     traits,
		version:    version,
		recordedAt: recordedAt,
	}, nil
}

func (m *PersonalityMetrics) ParticleID() valueobjects.ParticleID { return m.particleID }
func (m *PersonalityMetrics) Traits() valueobjects.TraitVector    { return m.traits }
func (m *PersonalityMetrics) Version() int                        { return m.version }
func (m *PersonalityMetrics) RecordedAt() time.Time               { return m.recordedAt }
