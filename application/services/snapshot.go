package services

import (
	"sort"
	"sync/atomic"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	domainservices "particle-universe/domain/services"
)

// Snapshot is a frozen view of a universe: the last persisted state, the live
// particles as they were loaded, and a neighbor index over the Active ones.
// Particles are clones; nothing a tick does afterwards is visible here.
type Snapshot struct {
	sim       *SimulationContext
	particles map[valueobjects.ParticleID]*entities.Particle
	ordered   []*entities.Particle
	index     *domainservices.NeighborIndex
}

// NewSnapshot clones the particles and indexes the Active ones
func NewSnapshot(sim *SimulationContext, particles []*entities.Particle) *Snapshot {
	s := &Snapshot{
		sim:       sim,
		particles: make(map[valueobjects.ParticleID]*entities.Particle, len(particles)),
		ordered:   make([]*entities.Particle, 0, len(particles)),
	}

	active := make([]*entities.Particle, 0, len(particles))
	for _, p := range particles {
		c := p.Clone()
		s.particles[c.ID()] = c
		s.ordered = append(s.ordered, c)
		if c.IsActive() {
			active = append(active, c)
		}
	}
	sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i].ID().Less(s.ordered[j].ID()) })

	s.index = domainservices.NewNeighborIndex(sim.Torus, sim.Config.Interaction.Radius, active)
	return s
}

// Context returns the simulation context the snapshot was taken under
func (s *Snapshot) Context() *SimulationContext { return s.sim }

// Particle returns the snapshot's copy of a live particle, or nil
func (s *Snapshot) Particle(id valueobjects.ParticleID) *entities.Particle {
	return s.particles[id]
}

// Particles returns every live particle in id order
func (s *Snapshot) Particles() []*entities.Particle { return s.ordered }

// Neighbors returns the Active particles within radius of p, nearest first
func (s *Snapshot) Neighbors(p *entities.Particle, radius float64) []domainservices.Neighbor {
	return s.index.QueryPoint(p.Position(), radius, p.ID())
}

// SnapshotHolder publishes the snapshot of the tick currently in flight.
// Readers that find one use it instead of the store, so they never observe a
// half-written tick.
type SnapshotHolder struct {
	inFlight atomic.Pointer[Snapshot]
}

// NewSnapshotHolder creates an empty holder
func NewSnapshotHolder() *SnapshotHolder {
	return &SnapshotHolder{}
}

// Begin publishes the tick-start snapshot
func (h *SnapshotHolder) Begin(s *Snapshot) { h.inFlight.Store(s) }

// End withdraws the snapshot once the tick has committed or aborted
func (h *SnapshotHolder) End() { h.inFlight.Store(nil) }

// InFlight returns the snapshot of the running tick, or nil when idle
func (h *SnapshotHolder) InFlight() *Snapshot { return h.inFlight.Load() }
