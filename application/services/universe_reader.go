package services

import (
	"context"
	"fmt"

	"particle-universe/application/ports"
	"particle-universe/domain/config"
	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	domainservices "particle-universe/domain/services"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

// NeighborResult is one particle found by a neighbor query
type NeighborResult struct {
	Particle *entities.Particle
	Distance float64
}

// UniverseReader serves the read-only inspection operations. While a tick is
// in flight it answers from that tick's start snapshot; otherwise it reads
// the store.
type UniverseReader struct {
	particles     ports.ParticleRepository
	personalities ports.PersonalityReader
	states        ports.UniverseStateRepository
	tuning        *config.Provider
	snapshots     *SnapshotHolder
	logger        *zap.Logger
}

// NewUniverseReader creates a new universe reader
func NewUniverseReader(
	particles ports.ParticleRepository,
	personalities ports.PersonalityReader,
	states ports.UniverseStateRepository,
	tuning *config.Provider,
	snapshots *SnapshotHolder,
	logger *zap.Logger,
) *UniverseReader {
	return &UniverseReader{
		particles:     particles,
		personalities: personalities,
		states:        states,
		tuning:        tuning,
		snapshots:     snapshots,
		logger:        logger,
	}
}

// State returns the latest committed universe snapshot
func (r *UniverseReader) State(ctx context.Context) (*aggregates.UniverseState, error) {
	if s := r.snapshots.InFlight(); s != nil {
		return s.Context().State, nil
	}

	cfg := r.tuning.Current()
	state, err := r.states.GetLatest(ctx, cfg.UniverseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe state: %w", err)
	}
	if state == nil {
		return aggregates.GenesisState(cfg.UniverseID, timeNow()), nil
	}
	return state, nil
}

// LiveParticles returns Active and Decaying particles in id order. The slice
// is the caller's; the particles are shared and must not be mutated.
func (r *UniverseReader) LiveParticles(ctx context.Context) ([]*entities.Particle, error) {
	if s := r.snapshots.InFlight(); s != nil {
		return append([]*entities.Particle(nil), s.Particles()...), nil
	}
	return r.particles.GetActiveParticles(ctx)
}

// Particle returns one particle in any state, or nil. Particles the running
// tick loaded come from its snapshot; any other is untouched by the tick and
// read from the store.
func (r *UniverseReader) Particle(ctx context.Context, id valueobjects.ParticleID) (*entities.Particle, error) {
	if s := r.snapshots.InFlight(); s != nil {
		if p := s.Particle(id); p != nil {
			return p, nil
		}
	}
	return r.particles.GetByID(ctx, id)
}

// ParticleByUser returns the user's live particle, or nil
func (r *UniverseReader) ParticleByUser(ctx context.Context, userID string) (*entities.Particle, error) {
	if s := r.snapshots.InFlight(); s != nil {
		for _, p := range s.Particles() {
			if p.UserID() == userID {
				return p, nil
			}
		}
	}
	return r.particles.GetParticleByUser(ctx, userID)
}

// Neighbors returns the Active particles within radius of a live particle.
// A non-positive radius means the configured interaction radius.
func (r *UniverseReader) Neighbors(ctx context.Context, id valueobjects.ParticleID, radius float64) ([]NeighborResult, error) {
	view, err := r.view(ctx)
	if err != nil {
		return nil, err
	}

	sim := view.Context()
	if radius <= 0 {
		radius = sim.Config.Interaction.Radius
	}
	if limit := min(sim.Torus.Width(), sim.Torus.Height()) / 2; radius > limit {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("radius must not exceed %g", limit))
	}

	p, err := r.live(ctx, view, id)
	if err != nil {
		return nil, err
	}

	found := view.Neighbors(p, radius)
	out := make([]NeighborResult, 0, len(found))
	for _, n := range found {
		out = append(out, NeighborResult{Particle: view.Particle(n.ID), Distance: n.Distance})
	}
	return out, nil
}

// PreviewInteraction classifies a pair as the next tick would, without
// changing anything
func (r *UniverseReader) PreviewInteraction(ctx context.Context, a, b valueobjects.ParticleID) (domainservices.Outcome, error) {
	view, err := r.view(ctx)
	if err != nil {
		return nil, err
	}

	pa, err := r.live(ctx, view, a)
	if err != nil {
		return nil, err
	}
	pb, err := r.live(ctx, view, b)
	if err != nil {
		return nil, err
	}
	if err := domainservices.ValidatePair(pa, pb); err != nil {
		return nil, err
	}

	ta, err := r.traits(ctx, a)
	if err != nil {
		return nil, err
	}
	tb, err := r.traits(ctx, b)
	if err != nil {
		return nil, err
	}

	// Evaluate never mutates; clones keep the snapshot sealed regardless
	return view.Context().Resolver.Evaluate(
		domainservices.Candidate{Particle: pa.Clone(), Traits: ta},
		domainservices.Candidate{Particle: pb.Clone(), Traits: tb},
	)
}

// Compatibility scores two particles' latest personality metrics
func (r *UniverseReader) Compatibility(ctx context.Context, a, b valueobjects.ParticleID) (float64, error) {
	ta, err := r.traits(ctx, a)
	if err != nil {
		return 0, err
	}
	tb, err := r.traits(ctx, b)
	if err != nil {
		return 0, err
	}

	cfg := r.tuning.Current()
	if s := r.snapshots.InFlight(); s != nil {
		cfg = &s.Context().Config
	}
	return domainservices.NewCompatibilityEvaluator(cfg.Compatibility).Evaluate(ta, tb), nil
}

// view returns the in-flight snapshot, or builds one from the store
func (r *UniverseReader) view(ctx context.Context) (*Snapshot, error) {
	if s := r.snapshots.InFlight(); s != nil {
		return s, nil
	}

	cfg := r.tuning.Current()
	sim, err := newSimulationContext(ctx, cfg, r.states, timeNow())
	if err != nil {
		return nil, err
	}
	particles, err := r.particles.GetActiveParticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active particles: %w", err)
	}
	return NewSnapshot(sim, particles), nil
}

// live finds a particle in the view, falling back to the store. Expired
// particles are a conflict, unknown ids are NotFound.
func (r *UniverseReader) live(ctx context.Context, view *Snapshot, id valueobjects.ParticleID) (*entities.Particle, error) {
	if p := view.Particle(id); p != nil {
		return p, nil
	}

	stored, err := r.particles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get particle: %w", err)
	}
	if stored == nil {
		return nil, pkgerrors.NewNotFoundError("particle " + id.String())
	}
	if stored.IsExpired() {
		return nil, pkgerrors.ErrParticleExpired
	}
	// spawned after the snapshot was taken
	return stored, nil
}

func (r *UniverseReader) traits(ctx context.Context, id valueobjects.ParticleID) (valueobjects.TraitVector, error) {
	m, err := r.personalities.GetLatestMetrics(ctx, id)
	if err != nil {
		return valueobjects.TraitVector{}, fmt.Errorf("failed to get personality metrics: %w", err)
	}
	if m == nil {
		return valueobjects.TraitVector{}, pkgerrors.NewNotFoundError("personality metrics for particle " + id.String())
	}
	return m.Traits(), nil
}
