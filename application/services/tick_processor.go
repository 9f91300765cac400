package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"particle-universe/application/ports"
	"particle-universe/domain/config"
	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/domain/events"
	domainservices "particle-universe/domain/services"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

// TickReport summarises one committed tick
type TickReport struct {
	UniverseID      string        `json:"universeId"`
	TickNumber      int64         `json:"tickNumber"`
	Processed       int           `json:"processedParticles"`
	Active          int           `json:"activeParticles"`
	Expired         int           `json:"expiredParticles"`
	Interactions    int           `json:"interactions"`
	AverageEnergy   float64       `json:"averageEnergy"`
	EventsPublished int           `json:"eventsPublished"`
	Duration        time.Duration `json:"duration"`
}

// TickProcessor advances a universe by one discrete step. It is the single
// writer of particle state during a tick; a second ProcessTick call that
// arrives while one is running is rejected, never queued.
type TickProcessor struct {
	particles     ports.ParticleRepository
	personalities ports.PersonalityReader
	states        ports.UniverseStateRepository
	publisher     ports.EventPublisher
	lock          ports.TickLock
	metrics       ports.MetricsRecorder
	tracer        ports.Tracer
	tuning        *config.Provider
	snapshots     *SnapshotHolder
	logger        *zap.Logger
	clock         func() time.Time

	mu sync.Mutex
}

// NewTickProcessor creates a tick processor. lock and metrics may be nil.
func NewTickProcessor(
	particles ports.ParticleRepository,
	personalities ports.PersonalityReader,
	states ports.UniverseStateRepository,
	publisher ports.EventPublisher,
	lock ports.TickLock,
	metrics ports.MetricsRecorder,
	tuning *config.Provider,
	snapshots *SnapshotHolder,
	logger *zap.Logger,
) *TickProcessor {
	return &TickProcessor{
		particles:     particles,
		personalities: personalities,
		states:        states,
		publisher:     publisher,
		lock:          lock,
		metrics:       metrics,
		tuning:        tuning,
		snapshots:     snapshots,
		logger:        logger,
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source
func (p *TickProcessor) WithClock(clock func() time.Time) *TickProcessor {
	p.clock = clock
	return p
}

// WithTracer records a span for every tick phase
func (p *TickProcessor) WithTracer(tracer ports.Tracer) *TickProcessor {
	p.tracer = tracer
	return p
}

func (p *TickProcessor) trace(ctx context.Context, phase string, fn func(context.Context) error) error {
	if p.tracer == nil {
		return fn(ctx)
	}
	return p.tracer.TraceFunction(ctx, phase, fn)
}

// workingSet is the in-memory copy of the population a tick mutates
type workingSet struct {
	particles []*entities.Particle
	byID      map[valueobjects.ParticleID]*entities.Particle
	traits    map[valueobjects.ParticleID]valueobjects.TraitVector
	claimed   map[valueobjects.ParticleID]bool
	events    []events.DomainEvent

	interactions int
}

type candidatePair struct {
	a, b *entities.Particle
}

// ProcessTick runs one tick: load, integrate, index, resolve pairs, age,
// persist, then advance the universe state and publish events. Any
// persistence failure aborts the tick with nothing published and the tick
// number unchanged.
func (p *TickProcessor) ProcessTick(ctx context.Context) (*TickReport, error) {
	cfg := p.tuning.Current()

	if !p.mu.TryLock() {
		p.rejected(ctx, cfg.UniverseID)
		return nil, pkgerrors.NewConcurrentTickError(cfg.UniverseID)
	}
	defer p.mu.Unlock()

	// Once started a tick runs to completion
	ctx = context.WithoutCancel(ctx)

	if p.lock != nil {
		release, err := p.lock.Acquire(ctx, cfg.UniverseID)
		if err != nil {
			if pkgerrors.IsConcurrentTick(err) {
				p.rejected(ctx, cfg.UniverseID)
				return nil, err
			}
			return nil, p.abort(ctx, cfg.UniverseID, "lock", pkgerrors.NewPersistenceError("acquire tick lock", err))
		}
		defer func() {
			if err := release(ctx); err != nil {
				p.logger.Warn("Failed to release tick lock",
					zap.String("universeID", cfg.UniverseID),
					zap.Error(err),
				)
			}
		}()
	}

	start := p.clock()
	sim, err := newSimulationContext(ctx, cfg, p.states, start)
	if err != nil {
		return nil, p.abort(ctx, cfg.UniverseID, "load_state", pkgerrors.NewPersistenceError("load universe state", err))
	}

	p.logger.Info("Tick started",
		zap.String("universeID", sim.UniverseID),
		zap.Int64("tickNumber", sim.NextTick()),
	)

	// 1. Load
	var loaded []*entities.Particle
	err = p.trace(ctx, "load_particles", func(ctx context.Context) error {
		var err error
		loaded, err = p.particles.GetActiveParticles(ctx)
		return err
	})
	if err != nil {
		return nil, p.abort(ctx, sim.UniverseID, "load_particles", pkgerrors.NewPersistenceError("load active particles", err))
	}

	snapshot := NewSnapshot(sim, loaded)
	p.snapshots.Begin(snapshot)
	defer p.snapshots.End()

	ws := newWorkingSet(loaded)

	// 2. Integrate motion
	sim.Motion.Integrate(ws.particles)

	// 3-4. Index and resolve pairs
	var pairs []candidatePair
	err = p.trace(ctx, "collect_pairs", func(ctx context.Context) error {
		var err error
		pairs, err = p.collectPairs(ctx, sim, ws)
		return err
	})
	if err != nil {
		return nil, p.abort(ctx, sim.UniverseID, "load_personality", pkgerrors.NewPersistenceError("load personality metrics", err))
	}
	if err := p.resolvePairs(sim, ws, pairs); err != nil {
		return nil, p.abort(ctx, sim.UniverseID, "resolve", err)
	}

	// 5. Lifecycle
	for _, particle := range ws.particles {
		if particle.IsExpired() {
			continue
		}
		if _, err := sim.Lifecycle.Apply(particle, sim.StartedAt); err != nil {
			return nil, p.abort(ctx, sim.UniverseID, "lifecycle", fmt.Errorf("lifecycle of %s: %w", particle.ID(), err))
		}
	}

	report := ws.report(sim)
	next := sim.State.Next(aggregates.TickSummary{
		ActiveCount:      report.Active,
		AverageEnergy:    report.AverageEnergy,
		InteractionCount: report.Interactions,
	}, sim.StartedAt)

	// 6. Persist the whole working set. A store that splits the batch may
	// fail after committing part of it; whatever landed is rolled back.
	err = p.trace(ctx, "persist_particles", func(ctx context.Context) error {
		return p.particles.UpdateParticlesBatch(ctx, ws.particles)
	})
	if err != nil {
		p.rollback(ctx, sim, snapshot, ws)
		return nil, p.abort(ctx, sim.UniverseID, "persist_particles", pkgerrors.NewPersistenceError("update particles batch", err))
	}

	// 8. Advance the universe state; on failure the tick leaves no trace
	err = p.trace(ctx, "persist_state", func(ctx context.Context) error {
		return p.states.Save(ctx, next)
	})
	if err != nil {
		p.rollback(ctx, sim, snapshot, ws)
		return nil, p.abort(ctx, sim.UniverseID, "persist_state", pkgerrors.NewPersistenceError("save universe state", err))
	}

	report.Duration = p.clock().Sub(start)

	// 7. Events go out only after both writes succeeded
	batch := ws.collectEvents()
	batch = append(batch, events.NewDailyProcessingCompleted(
		sim.UniverseID,
		report.TickNumber,
		report.Processed,
		report.Active,
		report.Expired,
		report.Interactions,
		report.AverageEnergy,
		report.Duration,
		sim.StartedAt,
	))
	_ = p.trace(ctx, "publish_events", func(ctx context.Context) error {
		report.EventsPublished = p.publish(ctx, sim, batch)
		return nil
	})

	for _, particle := range ws.particles {
		particle.MarkEventsAsCommitted()
	}

	if budget := sim.Config.Tick.Budget; budget > 0 && report.Duration > budget {
		p.logger.Warn("Tick exceeded its time budget",
			zap.String("universeID", sim.UniverseID),
			zap.Int64("tickNumber", report.TickNumber),
			zap.Duration("duration", report.Duration),
			zap.Duration("budget", budget),
		)
	}

	if p.tracer != nil {
		p.tracer.AddMetadata(ctx, "tick", report)
	}
	if p.metrics != nil {
		p.metrics.RecordTick(ctx, ports.TickMetrics{
			UniverseID:   report.UniverseID,
			TickNumber:   report.TickNumber,
			Processed:    report.Processed,
			Active:       report.Active,
			Expired:      report.Expired,
			Interactions: report.Interactions,
			Duration:     report.Duration,
		})
	}

	p.logger.Info("Tick completed",
		zap.String("universeID", sim.UniverseID),
		zap.Int64("tickNumber", report.TickNumber),
		zap.Int("processed", report.Processed),
		zap.Int("active", report.Active),
		zap.Int("expired", report.Expired),
		zap.Int("interactions", report.Interactions),
		zap.Int64("durationMs", report.Duration.Milliseconds()),
	)

	return report, nil
}

func newWorkingSet(loaded []*entities.Particle) *workingSet {
	ws := &workingSet{
		particles: make([]*entities.Particle, 0, len(loaded)),
		byID:      make(map[valueobjects.ParticleID]*entities.Particle, len(loaded)),
		traits:    make(map[valueobjects.ParticleID]valueobjects.TraitVector, len(loaded)),
		claimed:   make(map[valueobjects.ParticleID]bool),
	}
	for _, particle := range loaded {
		// The store contract says Active or Decaying; anything else is ignored
		if particle == nil || particle.IsExpired() {
			continue
		}
		if _, dup := ws.byID[particle.ID()]; dup {
			continue
		}
		ws.particles = append(ws.particles, particle)
		ws.byID[particle.ID()] = particle
	}
	sort.Slice(ws.particles, func(i, j int) bool { return ws.particles[i].ID().Less(ws.particles[j].ID()) })
	return ws
}

// collectPairs builds the neighbor index over Active particles and, in
// parallel, runs the neighbor queries and loads personality metrics. The
// result is the canonical list of unordered pairs with id(a) < id(b).
func (p *TickProcessor) collectPairs(ctx context.Context, sim *SimulationContext, ws *workingSet) ([]candidatePair, error) {
	active := make([]*entities.Particle, 0, len(ws.particles))
	for _, particle := range ws.particles {
		if particle.IsActive() {
			active = append(active, particle)
		}
	}

	index := domainservices.NewNeighborIndex(sim.Torus, sim.Config.Interaction.Radius, active)

	neighbors := make([][]domainservices.Neighbor, len(active))
	traits := make([]*entities.PersonalityMetrics, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, sim.Config.Tick.NeighborWorkers))
	for i, particle := range active {
		g.Go(func() error {
			found, _ := index.Query(particle.ID(), sim.Config.Interaction.Radius)
			neighbors[i] = found

			metrics, err := p.personalities.GetLatestMetrics(gctx, particle.ID())
			if err != nil {
				return fmt.Errorf("metrics for %s: %w", particle.ID(), err)
			}
			traits[i] = metrics
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, particle := range active {
		if traits[i] != nil {
			ws.traits[particle.ID()] = traits[i].Traits()
		}
	}

	var pairs []candidatePair
	for i, particle := range active {
		for _, n := range neighbors[i] {
			if !particle.ID().Less(n.ID) {
				continue
			}
			pairs = append(pairs, candidatePair{a: particle, b: ws.byID[n.ID]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if !pairs[i].a.ID().Equals(pairs[j].a.ID()) {
			return pairs[i].a.ID().Less(pairs[j].a.ID())
		}
		return pairs[i].b.ID().Less(pairs[j].b.ID())
	})

	return pairs, nil
}

// resolvePairs runs the resolver over the pairs in canonical order. Pairs
// are applied one at a time, so every mutation of a particle is serialized
// and a particle claimed by a merge is never touched again this tick.
func (p *TickProcessor) resolvePairs(sim *SimulationContext, ws *workingSet, pairs []candidatePair) error {
	tick := sim.NextTick()
	now := sim.StartedAt

	for _, pair := range pairs {
		a, b := pair.a, pair.b
		if ws.claimed[a.ID()] || ws.claimed[b.ID()] {
			continue
		}
		ta, okA := ws.traits[a.ID()]
		tb, okB := ws.traits[b.ID()]
		if !okA || !okB {
			p.logger.Debug("Skipping pair without personality metrics",
				zap.String("particleA", a.ID().String()),
				zap.String("particleB", b.ID().String()),
			)
			continue
		}

		outcome, err := sim.Resolver.Resolve(
			domainservices.Candidate{Particle: a, Traits: ta},
			domainservices.Candidate{Particle: b, Traits: tb},
			now,
		)
		if err != nil {
			return fmt.Errorf("resolve %s/%s: %w", a.ID(), b.ID(), err)
		}

		p.logger.Debug("Pair resolved",
			zap.String("particleA", a.ID().String()),
			zap.String("particleB", b.ID().String()),
			zap.String("outcome", string(outcome.Type())),
			zap.Float64("compatibility", outcome.Compatibility()),
		)

		switch out := outcome.(type) {
		case domainservices.MergeOutcome:
			survivor, absorbed := ws.byID[out.Survivor], ws.byID[out.Absorbed]
			ws.claimed[out.Absorbed] = true
			ws.traits[out.Survivor] = out.BlendedTraits
			ws.interactions++
			ws.events = append(ws.events, events.NewParticleMerged(
				tick,
				out.Survivor, out.Absorbed,
				survivor.UserID(), absorbed.UserID(),
				out.Compat, out.Mass, out.Energy,
				out.Position, out.BlendedTraits,
				now,
			))

		case domainservices.RepelOutcome:
			ws.interactions++
			ws.events = append(ws.events, events.NewParticleRepelled(
				tick, a.ID(), b.ID(), a.UserID(), b.UserID(),
				out.Compat, out.Distance, out.Impulse, now,
			))

		case domainservices.BondOutcome, domainservices.AttractOutcome:
			ws.interactions++
			ws.events = append(ws.events, events.NewParticleInteraction(
				tick, a.ID(), b.ID(), a.UserID(), b.UserID(),
				outcome.Type(), outcome.Strength(), outcome.Description(), now,
			))

		case domainservices.NoInteraction:
			// no mutation, no event
		}
	}
	return nil
}

// report computes the tick figures from the final working set
func (ws *workingSet) report(sim *SimulationContext) *TickReport {
	r := &TickReport{
		UniverseID:   sim.UniverseID,
		TickNumber:   sim.NextTick(),
		Processed:    len(ws.particles),
		Interactions: ws.interactions,
	}

	live, energy := 0, 0.0
	for _, particle := range ws.particles {
		switch {
		case particle.IsExpired():
			r.Expired++
		case particle.IsActive():
			r.Active++
			fallthrough
		default:
			live++
			energy += particle.Energy()
		}
	}
	if live > 0 {
		r.AverageEnergy = energy / float64(live)
	}
	return r
}

// collectEvents returns interaction events in resolution order followed by
// each particle's own lifecycle events in id order
func (ws *workingSet) collectEvents() []events.DomainEvent {
	out := make([]events.DomainEvent, 0, len(ws.events)+len(ws.particles))
	out = append(out, ws.events...)
	for _, particle := range ws.particles {
		out = append(out, particle.GetUncommittedEvents()...)
	}
	return out
}

// publish sends the batch best-effort. A failing sink is logged and never
// fails the tick, since the state it describes is already committed.
func (p *TickProcessor) publish(ctx context.Context, sim *SimulationContext, batch []events.DomainEvent) int {
	if p.publisher == nil || len(batch) == 0 {
		return 0
	}
	if err := p.publisher.PublishBatch(ctx, batch); err != nil {
		p.logger.Warn("Failed to publish tick events",
			zap.String("universeID", sim.UniverseID),
			zap.Int64("tickNumber", sim.NextTick()),
			zap.Int("events", len(batch)),
			zap.Error(err),
		)
		return 0
	}
	return len(batch)
}

// rollback writes the tick-start copy back over every particle this tick
// committed. Each copy expects the version the tick wrote, so a particle
// someone changed in the meantime keeps their change.
func (p *TickProcessor) rollback(ctx context.Context, sim *SimulationContext, snapshot *Snapshot, ws *workingSet) {
	var originals []*entities.Particle
	for _, original := range snapshot.Particles() {
		written, ok := ws.byID[original.ID()]
		if !ok || written.StoredVersion() == original.StoredVersion() {
			continue
		}
		restored := original.Clone()
		restored.Rebase(written.StoredVersion())
		originals = append(originals, restored)
	}
	if len(originals) == 0 {
		return
	}

	err := p.trace(ctx, "rollback_particles", func(ctx context.Context) error {
		return p.particles.UpdateParticlesBatch(ctx, originals)
	})
	if err != nil {
		p.logger.Error("Failed to roll back particle batch",
			zap.String("universeID", sim.UniverseID),
			zap.Int64("tickNumber", sim.NextTick()),
			zap.Int("particles", len(originals)),
			zap.Error(err),
		)
		return
	}
	p.logger.Warn("Rolled back particles written by aborted tick",
		zap.String("universeID", sim.UniverseID),
		zap.Int64("tickNumber", sim.NextTick()),
		zap.Int("particles", len(originals)),
	)
}

func (p *TickProcessor) abort(ctx context.Context, universeID, phase string, err error) error {
	p.logger.Error("Tick aborted",
		zap.String("universeID", universeID),
		zap.String("phase", phase),
		zap.Error(err),
	)
	if p.tracer != nil {
		p.tracer.AddAnnotation(ctx, "abortedPhase", phase)
		p.tracer.RecordError(ctx, err)
	}
	if p.metrics != nil {
		p.metrics.RecordTickFailed(ctx, universeID, phase)
	}
	return err
}

func (p *TickProcessor) rejected(ctx context.Context, universeID string) {
	p.logger.Info("Tick rejected, another tick is in flight", zap.String("universeID", universeID))
	if p.metrics != nil {
		p.metrics.RecordTickRejected(ctx, universeID)
	}
}
