package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"particle-universe/application/commands"
	"particle-universe/application/ports"
	"particle-universe/application/services"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

// UpdateParticleStateHandler records user input on a particle
type UpdateParticleStateHandler struct {
	particles ports.ParticleRepository
	publisher ports.EventPublisher
	snapshots *services.SnapshotHolder
	logger    *zap.Logger
	clock     func() time.Time
}

// NewUpdateParticleStateHandler creates a new update handler
func NewUpdateParticleStateHandler(
	particles ports.ParticleRepository,
	publisher ports.EventPublisher,
	snapshots *services.SnapshotHolder,
	logger *zap.Logger,
) *UpdateParticleStateHandler {
	return &UpdateParticleStateHandler{
		particles: particles,
		publisher: publisher,
		snapshots: snapshots,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source
func (h *UpdateParticleStateHandler) WithClock(clock func() time.Time) *UpdateParticleStateHandler {
	h.clock = clock
	return h
}

// Handle refreshes lastInputAt, reactivating a Decaying particle, and applies
// the optional energy boost and velocity.
func (h *UpdateParticleStateHandler) Handle(ctx context.Context, cmd commands.UpdateParticleStateCommand) (*entities.Particle, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}

	// Fast path: the running tick will commit a newer version and Save would conflict
	if h.snapshots != nil && h.snapshots.InFlight() != nil {
		return nil, pkgerrors.ErrConcurrentModification
	}

	id, err := valueobjects.NewParticleIDFromString(cmd.ParticleID)
	if err != nil {
		return nil, err
	}

	particle, err := h.particles.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get particle: %w", err)
	}
	if particle == nil {
		return nil, pkgerrors.NewNotFoundError("particle " + cmd.ParticleID)
	}
	if particle.UserID() != cmd.UserID {
		return nil, pkgerrors.ErrUserNotAuthorized
	}

	now := h.clock()
	if err := particle.RecordInput(now); err != nil {
		return nil, err
	}
	if cmd.EnergyBoost != nil {
		if err := particle.AddEnergy(*cmd.EnergyBoost); err != nil {
			return nil, err
		}
	}
	if cmd.Velocity != nil {
		if err := particle.SetVelocity(*cmd.Velocity); err != nil {
			return nil, err
		}
	}
	particle.MarkStateUpdated(now)

	if err := h.particles.Save(ctx, particle); err != nil {
		// A tick committed between our load and save; the client may retry
		if errors.Is(err, pkgerrors.ErrConcurrentModification) {
			return nil, err
		}
		return nil, pkgerrors.NewPersistenceError("save particle", err)
	}

	h.logger.Debug("Particle state updated",
		zap.String("particleID", cmd.ParticleID),
		zap.String("userID", cmd.UserID),
		zap.String("state", string(particle.State())),
	)

	publishEvents(ctx, h.publisher, h.logger, particle)
	return particle, nil
}
