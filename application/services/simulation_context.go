package services

import (
	"context"
	"fmt"
	"time"

	"particle-universe/application/ports"
	"particle-universe/domain/config"
	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/valueobjects"
	domainservices "particle-universe/domain/services"
)

// SimulationContext is everything one tick works against, captured once at
// the start of the tick. Nothing in it is shared with other ticks; the
// persisted universe state loaded here is the only source of the tick number.
type SimulationContext struct {
	UniverseID string
	Config     config.SimulationConfig
	Torus      valueobjects.Torus
	State      *aggregates.UniverseState
	StartedAt  time.Time

	Compatibility *domainservices.CompatibilityEvaluator
	Resolver      *domainservices.InteractionResolver
	Lifecycle     *domainservices.LifecycleManager
	Motion        *domainservices.MotionIntegrator
}

var timeNow = func() time.Time { return time.Now().UTC() }

// NextTick is the tick number this context produces on success
func (c *SimulationContext) NextTick() int64 {
	return c.State.TickNumber() + 1
}

// newSimulationContext builds the per-tick context from a config copy and the
// latest persisted state. A universe that has never ticked starts at genesis.
func newSimulationContext(ctx context.Context, cfg *config.SimulationConfig, states ports.UniverseStateRepository, now time.Time) (*SimulationContext, error) {
	state, err := states.GetLatest(ctx, cfg.UniverseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe state: %w", err)
	}
	if state == nil {
		state = aggregates.GenesisState(cfg.UniverseID, now)
	}

	return NewSimulationContext(cfg, state, now)
}

// NewSimulationContext wires the domain services for one config and state
func NewSimulationContext(cfg *config.SimulationConfig, state *aggregates.UniverseState, now time.Time) (*SimulationContext, error) {
	torus, err := valueobjects.NewTorus(cfg.World.Width, cfg.World.Height)
	if err != nil {
		return nil, fmt.Errorf("invalid world: %w", err)
	}

	compat := domainservices.NewCompatibilityEvaluator(cfg.Compatibility)
	return &SimulationContext{
		UniverseID:    cfg.UniverseID,
		Config:        *cfg,
		Torus:         torus,
		State:         state,
		StartedAt:     now,
		Compatibility: compat,
		Resolver:      domainservices.NewInteractionResolver(cfg.Interaction, torus, compat),
		Lifecycle:     domainservices.NewLifecycleManager(cfg.Lifecycle),
		Motion:        domainservices.NewMotionIntegrator(torus, cfg.World.DT),
	}, nil
}
