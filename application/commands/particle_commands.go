package commands

import (
	"math"

	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"
	"particle-universe/pkg/utils"
)

// SpawnParticleCommand creates the live particle of a user
type SpawnParticleCommand struct {
	UserID string `json:"userId" validate:"required,max=128"`

	// Optional starting point; a random location is chosen when nil
	Position *valueobjects.Vector2 `json:"position,omitempty"`

	// Optional initial personality, stored as metrics version 1
	Traits *valueobjects.TraitVector `json:"traits,omitempty"`
}

// Validate validates the command
func (c SpawnParticleCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}
	if c.Position != nil && !c.Position.IsFinite() {
		return pkgerrors.ErrInvalidParticlePosition
	}
	if c.Traits != nil {
		return c.Traits.Validate()
	}
	return nil
}

// UpdateParticleStateCommand records fresh user input on a particle
type UpdateParticleStateCommand struct {
	ParticleID  string                `json:"particleId" validate:"required,uuid"`
	UserID      string                `json:"userId" validate:"required"`
	EnergyBoost *float64              `json:"energyBoost,omitempty" validate:"omitempty,gte=0"`
	Velocity    *valueobjects.Vector2 `json:"velocity,omitempty"`
}

// Validate validates the command
func (c UpdateParticleStateCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}
	if c.EnergyBoost != nil && (math.IsNaN(*c.EnergyBoost) || math.IsInf(*c.EnergyBoost, 0)) {
		return pkgerrors.ErrInvalidParticleEnergy
	}
	if c.Velocity != nil && !c.Velocity.IsFinite() {
		return pkgerrors.NewValidationError("velocity must be finite")
	}
	return nil
}

// TriggerTickCommand runs one tick now
type TriggerTickCommand struct {
	// RequestedBy names the trigger (a user id, "scheduler", "cli")
	RequestedBy string `json:"requestedBy" validate:"required"`
}

// Validate validates the command
func (c TriggerTickCommand) Validate() error {
	return utils.ValidateStruct(c)
}
