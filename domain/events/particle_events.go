package events

import (
	"time"

	"particle-universe/domain/core/valueobjects"
)

// Particle lifecycle events

// ParticleSpawned is raised when a user's particle enters the universe
type ParticleSpawned struct {
	BaseEvent
	ParticleID valueobjects.ParticleID `json:"particle_id"`
	UserID     string                  `json:"user_id"`
	Position   valueobjects.Vector2    `json:"position"`
	Velocity   valueobjects.Vector2    `json:"velocity"`
	Mass       float64                 `json:"mass"`
	Energy     float64                 `json:"energy"`
}

// NewParticleSpawned creates a ParticleSpawned event
func NewParticleSpawned(id valueobjects.ParticleID, userID string, pos, vel valueobjects.Vector2, mass, energy float64, timestamp time.Time) ParticleSpawned {
	return ParticleSpawned{
		BaseEvent:  newBase(id.String(), TypeParticleSpawned, timestamp),
		ParticleID: id,
		UserID:     userID,
		Position:   pos,
		Velocity:   vel,
		Mass:       mass,
		Energy:     energy,
	}
}

// ParticleExpired is raised when a particle reaches its terminal state
type ParticleExpired struct {
	BaseEvent
	ParticleID valueobjects.ParticleID `json:"particle_id"`
	UserID     string                  `json:"user_id"`
	Reason     string                  `json:"reason"`
	DecayLevel int                     `json:"decay_level"`
}

// NewParticleExpired creates a ParticleExpired event
func NewParticleExpired(id valueobjects.ParticleID, userID, reason string, decayLevel int, timestamp time.Time) ParticleExpired {
	return ParticleExpired{
		BaseEvent:  newBase(id.String(), TypeParticleExpired, timestamp),
		ParticleID: id,
		UserID:     userID,
		Reason:     reason,
		DecayLevel: decayLevel,
	}
}

// ParticleDecaying is raised when an inactive particle starts to decay
type ParticleDecaying struct {
	BaseEvent
	ParticleID valueobjects.ParticleID `json:"particle_id"`
	UserID     string                  `json:"user_id"`
	DecayLevel int                     `json:"decay_level"`
}

// NewParticleDecaying creates a ParticleDecaying event
func NewParticleDecaying(id valueobjects.ParticleID, userID string, decayLevel int, timestamp time.Time) ParticleDecaying {
	return ParticleDecaying{
		BaseEvent:  newBase(id.String(), TypeParticleDecaying, timestamp),
		ParticleID: id,
		UserID:     userID,
		DecayLevel: decayLevel,
	}
}

// ParticleReactivated is raised when fresh input revives a decaying particle
type ParticleReactivated struct {
	BaseEvent
	ParticleID valueobjects.ParticleID `json:"particle_id"`
	UserID     string                  `json:"user_id"`
}

// NewParticleReactivated creates a ParticleReactivated event
func NewParticleReactivated(id valueobjects.ParticleID, userID string, timestamp time.Time) ParticleReactivated {
	return ParticleReactivated{
		BaseEvent:  newBase(id.String(), TypeParticleReactivated, timestamp),
		ParticleID: id,
		UserID:     userID,
	}
}

// ParticleStateUpdated is raised when a user input changes a particle
type ParticleStateUpdated struct {
	BaseEvent
	ParticleID valueobjects.ParticleID `json:"particle_id"`
	UserID     string                  `json:"user_id"`
	Energy     float64                 `json:"energy"`
	Velocity   valueobjects.Vector2    `json:"velocity"`
}

// NewParticleStateUpdated creates a ParticleStateUpdated event
func NewParticleStateUpdated(id valueobjects.ParticleID, userID string, energy float64, vel valueobjects.Vector2, timestamp time.Time) ParticleStateUpdated {
	return ParticleStateUpdated{
		BaseEvent:  newBase(id.String(), TypeParticleStateUpdated, timestamp),
		ParticleID: id,
		UserID:     userID,
		Energy:     energy,
		Velocity:   vel,
	}
}

// Interaction events

// ParticleMerged is raised when one particle absorbs another
type ParticleMerged struct {
	BaseEvent
	TickNumber     int64                    `json:"tick_number"`
	SurvivorID     valueobjects.ParticleID  `json:"survivor_id"`
	AbsorbedID     valueobjects.ParticleID  `json:"absorbed_id"`
	UserID         string                   `json:"user_id"`
	AbsorbedUserID string                   `json:"absorbed_user_id"`
	Compatibility  float64                  `json:"compatibility"`
	Mass           float64                  `json:"mass"`
	Energy         float64                  `json:"energy"`
	Position       valueobjects.Vector2     `json:"position"`
	BlendedTraits  valueobjects.TraitVector `json:"blended_traits"`
}

// NewParticleMerged creates a ParticleMerged event
func NewParticleMerged(
	tick int64,
	survivorID, absorbedID valueobjects.ParticleID,
	userID, absorbedUserID string,
	compatibility, mass, energy float64,
	pos valueobjects.Vector2,
	traits valueobjects.TraitVector,
	timestamp time.Time,
) ParticleMerged {
	return ParticleMerged{
		BaseEvent:      newBase(survivorID.String(), TypeParticleMerged, timestamp),
		TickNumber:     tick,
		SurvivorID:     survivorID,
		AbsorbedID:     absorbedID,
		UserID:         userID,
		AbsorbedUserID: absorbedUserID,
		Compatibility:  compatibility,
		Mass:           mass,
		Energy:         energy,
		Position:       pos,
		BlendedTraits:  traits,
	}
}

// ParticleRepelled is raised when a pair pushes apart
type ParticleRepelled struct {
	BaseEvent
	TickNumber    int64                   `json:"tick_number"`
	ParticleAID   valueobjects.ParticleID `json:"particle_a_id"`
	ParticleBID   valueobjects.ParticleID `json:"particle_b_id"`
	UserAID       string                  `json:"user_a_id"`
	UserBID       string                  `json:"user_b_id"`
	Compatibility float64                 `json:"compatibility"`
	Distance      float64                 `json:"distance"`
	Impulse       float64                 `json:"impulse"`
}

// NewParticleRepelled creates a ParticleRepelled event
func NewParticleRepelled(tick int64, a, b valueobjects.ParticleID, userA, userB string, compatibility, distance, impulse float64, timestamp time.Time) ParticleRepelled {
	return ParticleRepelled{
		BaseEvent:     newBase(a.String(), TypeParticleRepelled, timestamp),
		TickNumber:    tick,
		ParticleAID:   a,
		ParticleBID:   b,
		UserAID:       userA,
		UserBID:       userB,
		Compatibility: compatibility,
		Distance:      distance,
		Impulse:       impulse,
	}
}

// ParticleInteraction is raised for the gentler outcomes (bond, attract)
type ParticleInteraction struct {
	BaseEvent
	TickNumber      int64                        `json:"tick_number"`
	ParticleAID     valueobjects.ParticleID      `json:"particle_a_id"`
	ParticleBID     valueobjects.ParticleID      `json:"particle_b_id"`
	UserAID         string                       `json:"user_a_id"`
	UserBID         string                       `json:"user_b_id"`
	InteractionType valueobjects.InteractionType `json:"interaction_type"`
	Strength        float64                      `json:"strength"`
	Description     string                       `json:"description"`
}

// NewParticleInteraction creates a ParticleInteraction event
func NewParticleInteraction(
	tick int64,
	a, b valueobjects.ParticleID,
	userA, userB string,
	kind valueobjects.InteractionType,
	strength float64,
	description string,
	timestamp time.Time,
) ParticleInteraction {
	return ParticleInteraction{
		BaseEvent:       newBase(a.String(), TypeParticleInteraction, timestamp),
		TickNumber:      tick,
		ParticleAID:     a,
		ParticleBID:     b,
		UserAID:         userA,
		UserBID:         userB,
		InteractionType: kind,
		Strength:        strength,
		Description:     description,
	}
}

// Universe events

// DailyProcessingCompleted is raised once per successful tick
type DailyProcessingCompleted struct {
	BaseEvent
	UniverseID         string  `json:"universe_id"`
	TickNumber         int64   `json:"tick_number"`
	ProcessedParticles int     `json:"processed_particles"`
	ActiveParticles    int     `json:"active_particles"`
	ExpiredParticles   int     `json:"expired_particles"`
	InteractionCount   int     `json:"interaction_count"`
	AverageEnergy      float64 `json:"average_energy"`
	DurationMs         int64   `json:"duration_ms"`
}

// NewDailyProcessingCompleted creates a DailyProcessingCompleted event
func NewDailyProcessingCompleted(universeID string, tick int64, processed, active, expired, interactions int, avgEnergy float64, duration time.Duration, timestamp time.Time) DailyProcessingCompleted {
	return DailyProcessingCompleted{
		BaseEvent:          newBase(universeID, TypeDailyProcessingCompleted, timestamp),
		UniverseID:         universeID,
		TickNumber:         tick,
		ProcessedParticles: processed,
		ActiveParticles:    active,
		ExpiredParticles:   expired,
		InteractionCount:   interactions,
		AverageEnergy:      avgEnergy,
		DurationMs:         duration.Milliseconds(),
	}
}
