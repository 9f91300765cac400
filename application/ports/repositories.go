package ports

import (
	"context"
	"time"

	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/domain/events"
)

// ParticleRepository defines the interface for particle persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation.
// Lookups return (nil, nil) when nothing matches; absence is not an error.
type ParticleRepository interface {
	// Save persists a single particle (create or update). An update of a
	// particle changed by someone else since it was loaded fails with
	// errors.ErrConcurrentModification.
	Save(ctx context.Context, particle *entities.Particle) error

	// GetByID retrieves a particle by its ID, in any state
	GetByID(ctx context.Context, id valueobjects.ParticleID) (*entities.Particle, error)

	// GetActiveParticles retrieves every particle that is Active or Decaying
	GetActiveParticles(ctx context.Context) ([]*entities.Particle, error)

	// GetParticleByUser retrieves the user's live (non-expired) particle
	GetParticleByUser(ctx context.Context, userID string) (*entities.Particle, error)

	// UpdateParticlesBatch writes the set, each particle only if the store
	// still holds its StoredVersion. A stale particle fails the batch with
	// errors.ErrConcurrentModification. A store that cannot write the set
	// atomically may fail after committing part of it; particles it did
	// commit are marked persisted so the caller can roll them back.
	UpdateParticlesBatch(ctx context.Context, particles []*entities.Particle) error
}

// PersonalityReader is the read-only view of the personality component
type PersonalityReader interface {
	// GetLatestMetrics returns the most recent metrics version for a particle
	GetLatestMetrics(ctx context.Context, particleID valueobjects.ParticleID) (*entities.PersonalityMetrics, error)
}

// PersonalityWriter is used by seeding paths (spawn with initial traits, the CLI).
// The simulation itself never writes personality data.
type PersonalityWriter interface {
	SaveMetrics(ctx context.Context, metrics *entities.PersonalityMetrics) error
}

// PersonalityStore combines both sides, as every adapter implements them together
type PersonalityStore interface {
	PersonalityReader
	PersonalityWriter
}

// UniverseStateRepository stores one immutable snapshot per tick
type UniverseStateRepository interface {
	// GetLatest returns the snapshot with the highest tick number
	GetLatest(ctx context.Context, universeID string) (*aggregates.UniverseState, error)

	// Save stores a new snapshot. Saving a tick number that already exists fails.
	Save(ctx context.Context, state *aggregates.UniverseState) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish publishes a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch publishes multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// ReleaseFunc gives back a lock obtained from TickLock
type ReleaseFunc func(ctx context.Context) error

// TickLock guards a universe against two ticks running at once, across
// processes. Acquire returns errors.ErrConcurrentTickRejected when the lock is held.
type TickLock interface {
	Acquire(ctx context.Context, universeID string) (ReleaseFunc, error)
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with a TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from cache
	Clear(ctx context.Context) error
}

// TickMetrics are the figures reported for each completed tick
type TickMetrics struct {
	UniverseID   string
	TickNumber   int64
	Processed    int
	Active       int
	Expired      int
	Interactions int
	Duration     time.Duration
}

// MetricsRecorder receives operational metrics. Implementations must not block a tick.
type MetricsRecorder interface {
	RecordTick(ctx context.Context, m TickMetrics)
	RecordTickRejected(ctx context.Context, universeID string)
	RecordTickFailed(ctx context.Context, universeID string, reason string)
}

// Tracer records spans around units of work. Without an enclosing trace the
// functions run untraced.
type Tracer interface {
	TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error
	AddAnnotation(ctx context.Context, key string, value string)
	AddMetadata(ctx context.Context, key string, value interface{})
	RecordError(ctx context.Context, err error)
}
