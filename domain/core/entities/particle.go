package entities

import (
	"fmt"
	"time"

	"particle-universe/domain/core/valueobjects"
	"particle-universe/domain/events"
	pkgerrors "particle-universe/pkg/errors"
)

// ParticleState represents the lifecycle state of a particle
type ParticleState string

const (
	StateActive   ParticleState = "active"
	StateDecaying ParticleState = "decaying"
	StateExpired  ParticleState = "expired"

	// Reserved states. Nothing transitions into them; the lifecycle
	// rejects them until a merge animation or split policy exists.
	StateMerging   ParticleState = "merging"
	StateSplitting ParticleState = "splitting"
)

// IsValid reports whether s is a state a stored particle may be in
func (s ParticleState) IsValid() bool {
	return s == StateActive || s == StateDecaying || s == StateExpired
}

// ExpiryReason records why a particle reached the Expired state
type ExpiryReason string

const (
	ReasonNone       ExpiryReason = ""
	ReasonMerged     ExpiryReason = "merged"
	ReasonInactivity ExpiryReason = "inactivity"
)

// Particle is a simulated entity representing one user's evolving behavioral state.
// This is a rich domain model; every state change goes through a method
// that enforces the lifecycle graph.
type Particle struct {
	id           valueobjects.ParticleID
	userID       string
	position     valueobjects.Vector2
	velocity     valueobjects.Vector2
	mass         float64
	energy       float64
	state        ParticleState
	expiryReason ExpiryReason
	decayLevel   int
	createdAt    time.Time
	updatedAt    time.Time
	lastInputAt  *time.Time
	version      int

	// Version the store held when this copy was loaded or last written; zero
	// for a particle that was never persisted
	storedVersion int

	// Domain events that occurred during this aggregate's lifetime
	events []events.DomainEvent
}

// ParticleData is the flat persistence shape of a particle
type ParticleData struct {
	ID           valueobjects.ParticleID
	UserID       string
	Position     valueobjects.Vector2
	Velocity     valueobjects.Vector2
	Mass         float64
	Energy       float64
	State        ParticleState
	ExpiryReason ExpiryReason
	DecayLevel   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastInputAt  *time.Time
	Version      int
}

// NewParticle spawns a new Active particle for a user
func NewParticle(
	id valueobjects.ParticleID,
	userID string,
	position, velocity valueobjects.Vector2,
	mass, energy float64,
	now time.Time,
) (*Particle, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("particle ID cannot be empty")
	}
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if !(mass > 0) {
		return nil, pkgerrors.ErrInvalidParticleMass
	}
	if !(energy >= 0) {
		return nil, pkgerrors.ErrInvalidParticleEnergy
	}

	// Spawning counts as the first input
	input := now
	p := &Particle{
		id:          id,
		userID:      userID,
		position:    position,
		velocity:    velocity,
		mass:        mass,
		energy:      energy,
		state:       StateActive,
		createdAt:   now,
		updatedAt:   now,
		lastInputAt: &input,
		version:     1,
		events:      []events.DomainEvent{},
	}

	p.addEvent(events.NewParticleSpawned(id, userID, position, velocity, mass, energy, now))
	return p, nil
}

// ReconstructParticle rebuilds a particle from repository data
func ReconstructParticle(d ParticleData) (*Particle, error) {
	if d.ID.IsZero() || d.UserID == "" {
		return nil, pkgerrors.NewValidationError("particle data is missing its identity")
	}
	if !(d.Mass > 0) {
		return nil, pkgerrors.ErrInvalidParticleMass
	}
	if !(d.Energy >= 0) {
		return nil, pkgerrors.ErrInvalidParticleEnergy
	}
	if !d.State.IsValid() {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("unknown particle state %q", d.State))
	}
	if d.DecayLevel < 0 {
		return nil, pkgerrors.NewValidationError("decay level cannot be negative")
	}

	var lastInput *time.Time
	if d.LastInputAt != nil {
		t := *d.LastInputAt
		lastInput = &t
	}

	return &Particle{
		id:            d.ID,
		userID:        d.UserID,
		position:      d.Position,
		velocity:      d.Velocity,
		mass:          d.Mass,
		energy:        d.Energy,
		state:         d.State,
		expiryReason:  d.ExpiryReason,
		decayLevel:    d.DecayLevel,
		createdAt:     d.CreatedAt,
		updatedAt:     d.UpdatedAt,
		lastInputAt:   lastInput,
		version:       d.Version,
		storedVersion: d.Version,
		events:        []events.DomainEvent{},
	}, nil
}

// Data returns the persistence shape of the particle
func (p *Particle) Data() ParticleData {
	var lastInput *time.Time
	if p.lastInputAt != nil {
		t := *p.lastInputAt
		lastInput = &t
	}
	return ParticleData{
		ID:           p.id,
		UserID:       p.userID,
		Position:     p.position,
		Velocity:     p.velocity,
		Mass:         p.mass,
		Energy:       p.energy,
		State:        p.state,
		ExpiryReason: p.expiryReason,
		DecayLevel:   p.decayLevel,
		CreatedAt:    p.createdAt,
		UpdatedAt:    p.updatedAt,
		LastInputAt:  lastInput,
		Version:      p.version,
	}
}

// Clone returns an independent copy without pending events
func (p *Particle) Clone() *Particle {
	cp, _ := ReconstructParticle(p.Data())
	cp.storedVersion = p.storedVersion
	return cp
}

// StoredVersion is the version a conditional write expects to find in the store
func (p *Particle) StoredVersion() int { return p.storedVersion }

// NextStoredVersion is the version the next successful write records
func (p *Particle) NextStoredVersion() int { return p.storedVersion + 1 }

// MarkPersisted records a successful write at the given version
func (p *Particle) MarkPersisted(version int) {
	p.version = version
	p.storedVersion = version
}

// Rebase makes the next write expect version instead of the loaded one.
// Rolling back a write that already landed uses it.
func (p *Particle) Rebase(version int) {
	p.storedVersion = version
}

// Getters

func (p *Particle) ID() valueobjects.ParticleID     { return p.id }
func (p *Particle) UserID() string                  { return p.userID }
func (p *Particle) Position() valueobjects.Vector2  { return p.position }
func (p *Particle) Velocity() valueobjects.Vector2  { return p.velocity }
func (p *Particle) Mass() float64                   { return p.mass }
func (p *Particle) Energy() float64                 { return p.energy }
func (p *Particle) State() ParticleState            { return p.state }
func (p *Particle) ExpiryReason() ExpiryReason      { return p.expiryReason }
func (p *Particle) DecayLevel() int                 { return p.decayLevel }
func (p *Particle) CreatedAt() time.Time            { return p.createdAt }
func (p *Particle) UpdatedAt() time.Time            { return p.updatedAt }
func (p *Particle) Version() int                    { return p.version }

// LastInputAt returns the time of the latest user input, if any
func (p *Particle) LastInputAt() *time.Time {
	if p.lastInputAt == nil {
		return nil
	}
	t := *p.lastInputAt
	return &t
}

// IsActive reports whether the particle can take part in interactions
func (p *Particle) IsActive() bool { return p.state == StateActive }

// IsExpired reports whether the particle reached its terminal state
func (p *Particle) IsExpired() bool { return p.state == StateExpired }

// InactiveFor returns how long the particle has gone without input.
// A particle that never received input counts from its creation.
func (p *Particle) InactiveFor(now time.Time) time.Duration {
	ref := p.createdAt
	if p.lastInputAt != nil {
		ref = *p.lastInputAt
	}
	return now.Sub(ref)
}

// Motion

// Integrate advances the position by velocity*dt and wraps it onto the torus
func (p *Particle) Integrate(torus valueobjects.Torus, dt float64) {
	p.position = torus.Wrap(p.position.Add(p.velocity.Scale(dt)))
}

// ApplyImpulse changes velocity by impulse/mass
func (p *Particle) ApplyImpulse(impulse valueobjects.Vector2) {
	p.velocity = p.velocity.Add(impulse.Scale(1 / p.mass))
}

// SetVelocity replaces the velocity
func (p *Particle) SetVelocity(v valueobjects.Vector2) error {
	if !v.IsFinite() {
		return pkgerrors.NewValidationError("velocity must be finite")
	}
	p.velocity = v
	return nil
}

// Energy

// DrainEnergy removes up to amount energy; energy never goes negative
func (p *Particle) DrainEnergy(amount float64) {
	if amount <= 0 {
		return
	}
	p.energy -= amount
	if p.energy < 0 {
		p.energy = 0
	}
}

// AddEnergy adds a non-negative amount of energy
func (p *Particle) AddEnergy(amount float64) error {
	if !(amount >= 0) {
		return pkgerrors.ErrInvalidParticleEnergy
	}
	p.energy += amount
	return nil
}

// Merge

// Absorb folds other into p. Mass is summed exactly; position, velocity
// and energy are supplied by the caller's merge rule. other must be expired
// separately with ReasonMerged.
func (p *Particle) Absorb(other *Particle, position, velocity valueobjects.Vector2, energy float64, now time.Time) error {
	if !p.IsActive() || !other.IsActive() {
		return pkgerrors.NewDomainError(pkgerrors.DomainBusinessRuleError, pkgerrors.ErrIllegalTransition.Code,
			"only two active particles can merge")
	}
	if p.id.Equals(other.id) {
		return pkgerrors.NewInvalidPairError("a particle cannot absorb itself")
	}
	if !(energy >= 0) {
		return pkgerrors.ErrInvalidParticleEnergy
	}

	p.mass += other.mass
	p.position = position
	p.velocity = velocity
	p.energy = energy
	p.touch(now)
	return nil
}

// Lifecycle transitions

// BeginDecay moves an Active particle to Decaying and raises its decay level
func (p *Particle) BeginDecay(now time.Time) error {
	if p.state != StateActive {
		return p.illegal(StateDecaying)
	}
	p.state = StateDecaying
	p.decayLevel++
	p.touch(now)
	p.addEvent(events.NewParticleDecaying(p.id, p.userID, p.decayLevel, now))
	return nil
}

// DeepenDecay raises the decay level of a particle that keeps decaying
func (p *Particle) DeepenDecay(now time.Time) error {
	if p.state != StateDecaying {
		return p.illegal(StateDecaying)
	}
	p.decayLevel++
	p.touch(now)
	return nil
}

// Reactivate moves a Decaying particle back to Active and clears its decay
func (p *Particle) Reactivate(now time.Time) error {
	if p.state != StateDecaying {
		return p.illegal(StateActive)
	}
	p.state = StateActive
	p.decayLevel = 0
	p.touch(now)
	p.addEvent(events.NewParticleReactivated(p.id, p.userID, now))
	return nil
}

// Expire moves the particle to its terminal state.
// Merged expiry is only legal from Active, inactivity expiry only from Decaying.
func (p *Particle) Expire(reason ExpiryReason, now time.Time) error {
	switch reason {
	case ReasonMerged:
		if p.state != StateActive {
			return p.illegal(StateExpired)
		}
	case ReasonInactivity:
		if p.state != StateDecaying {
			return p.illegal(StateExpired)
		}
	default:
		return pkgerrors.NewValidationError(fmt.Sprintf("unknown expiry reason %q", reason))
	}

	p.state = StateExpired
	p.expiryReason = reason
	p.touch(now)
	p.addEvent(events.NewParticleExpired(p.id, p.userID, string(reason), p.decayLevel, now))
	return nil
}

// Split has no defined policy
func (p *Particle) Split() error {
	return pkgerrors.ErrSplitNotSupported
}

// RecordInput registers fresh user input. A Decaying particle reactivates.
func (p *Particle) RecordInput(now time.Time) error {
	if p.IsExpired() {
		return pkgerrors.ErrParticleExpired
	}

	input := now
	p.lastInputAt = &input
	p.touch(now)

	if p.state == StateDecaying {
		return p.Reactivate(now)
	}
	return nil
}

// MarkStateUpdated raises the event describing a user-driven update
func (p *Particle) MarkStateUpdated(now time.Time) {
	p.addEvent(events.NewParticleStateUpdated(p.id, p.userID, p.energy, p.velocity, now))
}

// Events

// GetUncommittedEvents returns events raised since the last commit
func (p *Particle) GetUncommittedEvents() []events.DomainEvent {
	return p.events
}

// MarkEventsAsCommitted clears pending events
func (p *Particle) MarkEventsAsCommitted() {
	p.events = []events.DomainEvent{}
}

func (p *Particle) addEvent(event events.DomainEvent) {
	p.events = append(p.events, event)
}

func (p *Particle) touch(now time.Time) {
	p.updatedAt = now
	p.version++
}

func (p *Particle) illegal(to ParticleState) error {
	// fresh error: the shared sentinel must not collect details
	return pkgerrors.NewDomainError(
		pkgerrors.DomainBusinessRuleError,
		pkgerrors.ErrIllegalTransition.Code,
		fmt.Sprintf("cannot move particle from %s to %s", p.state, to),
	).WithDetails(map[string]interface{}{
		"particle_id": p.id.String(),
		"from":        string(p.state),
		"to":          string(to),
	})
}
