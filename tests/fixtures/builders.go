package fixtures

import (
	"fmt"
	"time"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
)

// FixedNow is the reference clock used across tests
var FixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ID returns a deterministic particle id; smaller n sorts first
func ID(n int) valueobjects.ParticleID {
	return valueobjects.MustParticleID(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// ParticleBuilder helps create test particles with default values
type ParticleBuilder struct {
	id          valueobjects.ParticleID
	userID      string
	x, y        float64
	vx, vy      float64
	mass        float64
	energy      float64
	state       entities.ParticleState
	decayLevel  int
	createdAt   time.Time
	lastInputAt *time.Time
}

func NewParticleBuilder() *ParticleBuilder {
	input := FixedNow
	return &ParticleBuilder{
		id:          valueobjects.NewParticleID(),
		userID:      "test-user-123",
		mass:        10,
		energy:      5,
		state:       entities.StateActive,
		createdAt:   FixedNow.Add(-time.Hour),
		lastInputAt: &input,
	}
}

func (b *ParticleBuilder) WithID(id valueobjects.ParticleID) *ParticleBuilder {
	b.id = id
	return b
}

func (b *ParticleBuilder) WithUserID(userID string) *ParticleBuilder {
	b.userID = userID
	return b
}

func (b *ParticleBuilder) WithPosition(x, y float64) *ParticleBuilder {
	b.x, b.y = x, y
	return b
}

func (b *ParticleBuilder) WithVelocity(vx, vy float64) *ParticleBuilder {
	b.vx, b.vy = vx, vy
	return b
}

func (b *ParticleBuilder) WithMass(mass float64) *ParticleBuilder {
	b.mass = mass
	return b
}

func (b *ParticleBuilder) WithEnergy(energy float64) *ParticleBuilder {
	b.energy = energy
	return b
}

func (b *ParticleBuilder) WithState(state entities.ParticleState) *ParticleBuilder {
	b.state = state
	return b
}

func (b *ParticleBuilder) WithDecayLevel(level int) *ParticleBuilder {
	b.decayLevel = level
	return b
}

func (b *ParticleBuilder) WithLastInputAt(t time.Time) *ParticleBuilder {
	b.lastInputAt = &t
	return b
}

func (b *ParticleBuilder) WithoutInput() *ParticleBuilder {
	b.lastInputAt = nil
	return b
}

func (b *ParticleBuilder) WithCreatedAt(t time.Time) *ParticleBuilder {
	b.createdAt = t
	return b
}

func (b *ParticleBuilder) Build() (*entities.Particle, error) {
	return entities.ReconstructParticle(entities.ParticleData{
		ID:          b.id,
		UserID:      b.userID,
		Position:    valueobjects.Vec(b.x, b.y),
		Velocity:    valueobjects.Vec(b.vx, b.vy),
		Mass:        b.mass,
		Energy:      b.energy,
		State:       b.state,
		DecayLevel:  b.decayLevel,
		CreatedAt:   b.createdAt,
		UpdatedAt:   b.createdAt,
		LastInputAt: b.lastInputAt,
		Version:     1,
	})
}

func (b *ParticleBuilder) MustBuild() *entities.Particle {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// Traits returns a trait vector with every trait at v
func Traits(v float64) valueobjects.TraitVector {
	return valueobjects.TraitVector{Curiosity: v, SocialAffinity: v, Aggression: v, Stability: v, GrowthPotential: v}
}

// Metrics builds version-1 personality metrics for a particle
func Metrics(id valueobjects.ParticleID, traits valueobjects.TraitVector) *entities.PersonalityMetrics {
	m, err := entities.NewPersonalityMetrics(id, traits, 1, FixedNow)
	if err != nil {
		panic(err)
	}
	return m
}
