package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"
)

// ParticleRepository keeps particles in process memory. Entities are copied
// on the way in and out so callers never share state with the store.
type ParticleRepository struct {
	mu        sync.RWMutex
	particles map[valueobjects.ParticleID]entities.ParticleData
}

// NewParticleRepository creates an empty in-memory particle store
func NewParticleRepository() *ParticleRepository {
	return &ParticleRepository{
		particles: make(map[valueobjects.ParticleID]entities.ParticleData),
	}
}

// Save stores a particle unless another writer changed it since it was loaded
func (r *ParticleRepository) Save(ctx context.Context, particle *entities.Particle) error {
	if particle == nil {
		return fmt.Errorf("particle cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(particle); err != nil {
		return err
	}
	r.write(particle)
	return nil
}

// checkVersion mirrors the conditional writes of the durable stores
func (r *ParticleRepository) checkVersion(p *entities.Particle) error {
	stored, ok := r.particles[p.ID()]
	if ok && stored.Version != p.StoredVersion() {
		return pkgerrors.NewVersionConflictError("particle "+p.ID().String(), p.StoredVersion())
	}
	return nil
}

func (r *ParticleRepository) write(p *entities.Particle) {
	version := p.NextStoredVersion()
	data := p.Data()
	data.Version = version
	r.particles[data.ID] = data
	p.MarkPersisted(version)
}

// GetByID returns a particle in any state, or nil
func (r *ParticleRepository) GetByID(ctx context.Context, id valueobjects.ParticleID) (*entities.Particle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.particles[id]
	if !ok {
		return nil, nil
	}
	return entities.ReconstructParticle(data)
}

// GetActiveParticles returns every Active or Decaying particle ordered by id
func (r *ParticleRepository) GetActiveParticles(ctx context.Context) ([]*entities.Particle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.Particle, 0, len(r.particles))
	for _, data := range r.particles {
		if data.State == entities.StateExpired {
			continue
		}
		p, err := entities.ReconstructParticle(data)
		if err != nil {
			return nil, fmt.Errorf("failed to reconstruct particle %s: %w", data.ID, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().Less(out[j].ID()) })
	return out, nil
}

// GetParticleByUser returns the user's live particle, or nil
func (r *ParticleRepository) GetParticleByUser(ctx context.Context, userID string) (*entities.Particle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, data := range r.particles {
		if data.UserID == userID && data.State != entities.StateExpired {
			return entities.ReconstructParticle(data)
		}
	}
	return nil, nil
}

// UpdateParticlesBatch checks every version first, then replaces the whole
// batch under one lock
func (r *ParticleRepository) UpdateParticlesBatch(ctx context.Context, particles []*entities.Particle) error {
	for _, p := range particles {
		if p == nil {
			return fmt.Errorf("batch contains a nil particle")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range particles {
		if err := r.checkVersion(p); err != nil {
			return err
		}
	}
	for _, p := range particles {
		r.write(p)
	}
	return nil
}

// Count returns the number of stored particles in any state
func (r *ParticleRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.particles)
}
