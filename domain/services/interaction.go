package services

import (
	"fmt"
	"math"
	"time"

	"particle-universe/domain/config"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"
)

// Outcome is the closed set of pair resolutions. The concrete types are
// MergeOutcome, BondOutcome, RepelOutcome, AttractOutcome and NoInteraction.
type Outcome interface {
	Type() valueobjects.InteractionType
	Pair() (a, b valueobjects.ParticleID)
	Compatibility() float64
	Strength() float64
	Description() string
	outcome()
}

type pairInfo struct {
	A        valueobjects.ParticleID `json:"particle_a_id"`
	B        valueobjects.ParticleID `json:"particle_b_id"`
	Compat   float64                 `json:"compatibility"`
	Distance float64                 `json:"distance"`
}

func (p pairInfo) Pair() (valueobjects.ParticleID, valueobjects.ParticleID) { return p.A, p.B }
func (p pairInfo) Compatibility() float64                                   { return p.Compat }

// MergeOutcome absorbs one particle into the other
type MergeOutcome struct {
	pairInfo
	Survivor      valueobjects.ParticleID  `json:"survivor_id"`
	Absorbed      valueobjects.ParticleID  `json:"absorbed_id"`
	Mass          float64                  `json:"mass"`
	Energy        float64                  `json:"energy"`
	Position      valueobjects.Vector2     `json:"position"`
	Velocity      valueobjects.Vector2     `json:"velocity"`
	BlendedTraits valueobjects.TraitVector `json:"blended_traits"`
}

// BondOutcome partially aligns the pair's velocities
type BondOutcome struct {
	pairInfo
	VelocityA  valueobjects.Vector2 `json:"velocity_a"`
	VelocityB  valueobjects.Vector2 `json:"velocity_b"`
	EnergyCost float64              `json:"energy_cost"`
}

// RepelOutcome pushes the pair apart along the line between them
type RepelOutcome struct {
	pairInfo
	Impulse float64 `json:"impulse"`
	// Direction points from A to B
	Direction  valueobjects.Vector2 `json:"direction"`
	Aggressive bool                 `json:"aggressive"`
}

// AttractOutcome pulls the pair together
type AttractOutcome struct {
	pairInfo
	Impulse   float64              `json:"impulse"`
	Direction valueobjects.Vector2 `json:"direction"`
}

// NoInteraction leaves the pair untouched
type NoInteraction struct {
	pairInfo
	Reason string `json:"reason"`
}

func (MergeOutcome) Type() valueobjects.InteractionType   { return valueobjects.InteractionMerge }
func (BondOutcome) Type() valueobjects.InteractionType    { return valueobjects.InteractionBond }
func (RepelOutcome) Type() valueobjects.InteractionType   { return valueobjects.InteractionRepel }
func (AttractOutcome) Type() valueobjects.InteractionType { return valueobjects.InteractionAttract }
func (NoInteraction) Type() valueobjects.InteractionType  { return valueobjects.InteractionNone }

func (o MergeOutcome) Strength() float64   { return o.Compat }
func (o BondOutcome) Strength() float64    { return o.Compat }
func (o RepelOutcome) Strength() float64   { return o.Impulse }
func (o AttractOutcome) Strength() float64 { return o.Impulse }
func (NoInteraction) Strength() float64    { return 0 }

func (o MergeOutcome) Description() string {
	return fmt.Sprintf("%s absorbed %s (mass %.3f)", o.Survivor, o.Absorbed, o.Mass)
}

func (o BondOutcome) Description() string {
	return fmt.Sprintf("bonded at compatibility %.3f", o.Compat)
}

func (o RepelOutcome) Description() string {
	if o.Aggressive {
		return fmt.Sprintf("aggressive repulsion, impulse %.3f at distance %.3f", o.Impulse, o.Distance)
	}
	return fmt.Sprintf("repelled at compatibility %.3f, impulse %.3f", o.Compat, o.Impulse)
}

func (o AttractOutcome) Description() string {
	return fmt.Sprintf("attracted at compatibility %.3f, impulse %.3f", o.Compat, o.Impulse)
}

func (o NoInteraction) Description() string { return o.Reason }

func (MergeOutcome) outcome()   {}
func (BondOutcome) outcome()    {}
func (RepelOutcome) outcome()   {}
func (AttractOutcome) outcome() {}
func (NoInteraction) outcome()  {}

// Candidate is one side of a pair: the particle and its latest traits
type Candidate struct {
	Particle *entities.Particle
	Traits   valueobjects.TraitVector
}

// InteractionResolver classifies a pair and applies the outcome. Rules are
// checked in a fixed order and the first match wins: merge, bond, repel,
// attract, none. Everything is a deterministic function of the inputs.
type InteractionResolver struct {
	cfg    config.InteractionConfig
	torus  valueobjects.Torus
	compat *CompatibilityEvaluator
}

// NewInteractionResolver creates a resolver
func NewInteractionResolver(cfg config.InteractionConfig, torus valueobjects.Torus, compat *CompatibilityEvaluator) *InteractionResolver {
	return &InteractionResolver{cfg: cfg, torus: torus, compat: compat}
}

// Evaluate classifies the pair without mutating either particle
func (r *InteractionResolver) Evaluate(a, b Candidate) (Outcome, error) {
	if err := ValidatePair(a.Particle, b.Particle); err != nil {
		return nil, err
	}

	pa, pb := a.Particle, b.Particle
	delta := r.torus.Delta(pa.Position(), pb.Position())
	d := delta.Length()
	c := r.compat.Evaluate(a.Traits, b.Traits)
	info := pairInfo{A: pa.ID(), B: pb.ID(), Compat: c, Distance: d}

	if d > r.cfg.Radius {
		return NoInteraction{pairInfo: info, Reason: "outside interaction radius"}, nil
	}

	// 1. Merge
	combinedEnergy := pa.Energy() + pb.Energy()
	if c >= r.cfg.MergeThreshold && combinedEnergy < r.cfg.MergeEnergyCap {
		return r.merge(info, a, b), nil
	}

	// 2. Bond
	if c >= r.cfg.BondThreshold && c < r.cfg.MergeThreshold {
		return r.bond(info, pa, pb), nil
	}

	// 3. Repel
	aggressive := a.Traits.Aggression+b.Traits.Aggression > r.cfg.AggressionRepelThreshold
	if aggressive || c <= r.cfg.RepelThreshold {
		sep := math.Max(d, r.cfg.MinSeparation)
		impulse := r.cfg.RepelStrength * (1/sep - 1/r.cfg.Radius)
		if impulse < 0 {
			impulse = 0
		}
		return RepelOutcome{
			pairInfo:   info,
			Impulse:    impulse,
			Direction:  delta.Normalize(),
			Aggressive: aggressive,
		}, nil
	}

	// 4. Attract
	if c > r.cfg.AttractionFloor {
		sep := math.Max(d, r.cfg.MinSeparation)
		impulse := math.Min(r.cfg.AttractStrength*c/(sep*sep), r.cfg.MaxAttractImpulse)
		return AttractOutcome{pairInfo: info, Impulse: impulse, Direction: delta.Normalize()}, nil
	}

	// 5. None
	return NoInteraction{pairInfo: info, Reason: "below attraction floor"}, nil
}

// Apply mutates the pair according to an outcome produced by Evaluate for
// the same two particles.
func (r *InteractionResolver) Apply(o Outcome, a, b *entities.Particle, now time.Time) error {
	oa, ob := o.Pair()
	if !oa.Equals(a.ID()) || !ob.Equals(b.ID()) {
		return pkgerrors.NewInvalidPairError("outcome does not belong to this pair")
	}

	switch out := o.(type) {
	case MergeOutcome:
		survivor, absorbed := a, b
		if out.Survivor.Equals(b.ID()) {
			survivor, absorbed = b, a
		}
		if err := survivor.Absorb(absorbed, out.Position, out.Velocity, out.Energy, now); err != nil {
			return err
		}
		return absorbed.Expire(entities.ReasonMerged, now)

	case BondOutcome:
		if err := a.SetVelocity(out.VelocityA); err != nil {
			return err
		}
		if err := b.SetVelocity(out.VelocityB); err != nil {
			return err
		}
		a.DrainEnergy(out.EnergyCost)
		b.DrainEnergy(out.EnergyCost)

	case RepelOutcome:
		push := out.Direction.Scale(out.Impulse)
		a.ApplyImpulse(push.Scale(-1))
		b.ApplyImpulse(push)

	case AttractOutcome:
		pull := out.Direction.Scale(out.Impulse)
		a.ApplyImpulse(pull)
		b.ApplyImpulse(pull.Scale(-1))

	case NoInteraction:
		// nothing to do

	default:
		return fmt.Errorf("unknown outcome %T", o)
	}
	return nil
}

// Resolve evaluates and applies in one step
func (r *InteractionResolver) Resolve(a, b Candidate, now time.Time) (Outcome, error) {
	out, err := r.Evaluate(a, b)
	if err != nil {
		return nil, err
	}
	if err := r.Apply(out, a.Particle, b.Particle, now); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidatePair rejects self-pairs and pairs that are not both Active
func ValidatePair(a, b *entities.Particle) error {
	if a == nil || b == nil {
		return pkgerrors.NewInvalidPairError("both particles are required")
	}
	if a.ID().Equals(b.ID()) {
		return pkgerrors.NewInvalidPairError("a particle cannot interact with itself")
	}
	if !a.IsActive() || !b.IsActive() {
		return pkgerrors.NewInvalidPairError(fmt.Sprintf("both particles must be active, got %s and %s", a.State(), b.State()))
	}
	return nil
}

func (r *InteractionResolver) merge(info pairInfo, a, b Candidate) MergeOutcome {
	survivor, absorbed := a, b
	if !survives(a.Particle, b.Particle) {
		survivor, absorbed = b, a
	}
	s, x := survivor.Particle, absorbed.Particle

	mass := s.Mass() + x.Mass()
	share := x.Mass() / mass

	// Weighted position along the shortest path, so a pair straddling the
	// seam lands between them and not across the world
	pos := r.torus.Wrap(s.Position().Add(r.torus.Delta(s.Position(), x.Position()).Scale(share)))

	// Momentum is conserved
	vel := s.Velocity().Scale(s.Mass()).Add(x.Velocity().Scale(x.Mass())).Scale(1 / mass)

	energy := (s.Energy() + x.Energy()) * r.cfg.MergeEnergyEfficiency
	traits := survivor.Traits.Blend(absorbed.Traits, s.Mass()+s.Energy(), x.Mass()+x.Energy())

	return MergeOutcome{
		pairInfo:      info,
		Survivor:      s.ID(),
		Absorbed:      x.ID(),
		Mass:          mass,
		Energy:        energy,
		Position:      pos,
		Velocity:      vel,
		BlendedTraits: traits,
	}
}

func (r *InteractionResolver) bond(info pairInfo, a, b *entities.Particle) BondOutcome {
	total := a.Mass() + b.Mass()
	avg := a.Velocity().Scale(a.Mass()).Add(b.Velocity().Scale(b.Mass())).Scale(1 / total)
	k := r.cfg.BondDamping

	return BondOutcome{
		pairInfo:   info,
		VelocityA:  a.Velocity().Add(avg.Sub(a.Velocity()).Scale(k)),
		VelocityB:  b.Velocity().Add(avg.Sub(b.Velocity()).Scale(k)),
		EnergyCost: r.cfg.BondEnergyCost,
	}
}

// survives decides which side of a merge is kept: larger mass, then larger
// energy, then the smaller id.
func survives(a, b *entities.Particle) bool {
	if a.Mass() != b.Mass() {
		return a.Mass() > b.Mass()
	}
	if a.Energy() != b.Energy() {
		return a.Energy() > b.Energy()
	}
	return a.ID().Less(b.ID())
}
