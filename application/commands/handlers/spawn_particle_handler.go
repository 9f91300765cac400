package handlers

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"particle-universe/application/commands"
	"particle-universe/application/ports"
	"particle-universe/domain/config"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

// SpawnParticleHandler handles particle spawning
type SpawnParticleHandler struct {
	particles     ports.ParticleRepository
	personalities ports.PersonalityWriter
	publisher     ports.EventPublisher
	tuning        *config.Provider
	logger        *zap.Logger
	clock         func() time.Time
	random        func() float64
}

// NewSpawnParticleHandler creates a new spawn handler
func NewSpawnParticleHandler(
	particles ports.ParticleRepository,
	personalities ports.PersonalityWriter,
	publisher ports.EventPublisher,
	tuning *config.Provider,
	logger *zap.Logger,
) *SpawnParticleHandler {
	return &SpawnParticleHandler{
		particles:     particles,
		personalities: personalities,
		publisher:     publisher,
		tuning:        tuning,
		logger:        logger,
		clock:         func() time.Time { return time.Now().UTC() },
		random:        rand.Float64,
	}
}

// WithClock replaces the time source
func (h *SpawnParticleHandler) WithClock(clock func() time.Time) *SpawnParticleHandler {
	h.clock = clock
	return h
}

// Handle spawns the user's particle. A user owns at most one live particle.
func (h *SpawnParticleHandler) Handle(ctx context.Context, cmd commands.SpawnParticleCommand) (*entities.Particle, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}

	existing, err := h.particles.GetParticleByUser(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing particle: %w", err)
	}
	if existing != nil {
		return nil, pkgerrors.ErrParticleAlreadySpawned
	}

	cfg := h.tuning.Current()
	torus, err := valueobjects.NewTorus(cfg.World.Width, cfg.World.Height)
	if err != nil {
		return nil, err
	}

	var position valueobjects.Vector2
	if cmd.Position != nil {
		position = torus.Wrap(*cmd.Position)
	} else {
		position = valueobjects.Vec(h.random()*torus.Width(), h.random()*torus.Height())
		position = torus.Wrap(position)
	}

	angle := h.random() * 2 * math.Pi
	speed := h.random() * cfg.Spawn.MaxSpeed
	velocity := valueobjects.Vec(math.Cos(angle)*speed, math.Sin(angle)*speed)

	now := h.clock()
	particle, err := entities.NewParticle(
		valueobjects.NewParticleID(),
		cmd.UserID,
		position,
		velocity,
		cfg.Spawn.Mass,
		cfg.Spawn.Energy,
		now,
	)
	if err != nil {
		return nil, err
	}

	if err := h.particles.Save(ctx, particle); err != nil {
		return nil, pkgerrors.NewPersistenceError("save particle", err)
	}

	if cmd.Traits != nil && h.personalities != nil {
		metrics, err := entities.NewPersonalityMetrics(particle.ID(), *cmd.Traits, 1, now)
		if err != nil {
			return nil, err
		}
		if err := h.personalities.SaveMetrics(ctx, metrics); err != nil {
			return nil, pkgerrors.NewPersistenceError("save personality metrics", err)
		}
	}

	h.logger.Info("Particle spawned",
		zap.String("particleID", particle.ID().String()),
		zap.String("userID", cmd.UserID),
		zap.Float64("x", position.X),
		zap.Float64("y", position.Y),
	)

	publishEvents(ctx, h.publisher, h.logger, particle)
	return particle, nil
}

// publishEvents sends the particle's pending events best-effort
func publishEvents(ctx context.Context, publisher ports.EventPublisher, logger *zap.Logger, particle *entities.Particle) {
	pending := particle.GetUncommittedEvents()
	if publisher == nil || len(pending) == 0 {
		particle.MarkEventsAsCommitted()
		return
	}
	if err := publisher.PublishBatch(ctx, pending); err != nil {
		// Log error but don't fail - the state change is already stored
		logger.Warn("Failed to publish particle events",
			zap.String("particleID", particle.ID().String()),
			zap.Int("events", len(pending)),
			zap.Error(err),
		)
	}
	particle.MarkEventsAsCommitted()
}
