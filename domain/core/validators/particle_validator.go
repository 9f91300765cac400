package validators

import (
	"fmt"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/pkg/errors"
)

// ParticleValidator checks the data-model invariants of particles before
// they leave the engine.
type ParticleValidator struct {
	torus valueobjects.Torus
}

// NewParticleValidator creates a validator for the given world
func NewParticleValidator(torus valueobjects.Torus) *ParticleValidator {
	return &ParticleValidator{torus: torus}
}

// Validate checks a single particle
func (v *ParticleValidator) Validate(p *entities.Particle) error {
	validationErrors := errors.NewValidationErrors()
	id := p.ID().String()

	if !(p.Mass() > 0) {
		validationErrors.AddError(errors.NewDomainError(errors.DomainValidationError, errors.ErrInvalidParticleMass.Code,
			fmt.Sprintf("particle %s has non-positive mass %v", id, p.Mass())))
	}
	if !(p.Energy() >= 0) {
		validationErrors.AddError(errors.NewDomainError(errors.DomainValidationError, errors.ErrInvalidParticleEnergy.Code,
			fmt.Sprintf("particle %s has negative energy %v", id, p.Energy())))
	}
	if !v.torus.Contains(p.Position()) {
		validationErrors.AddError(errors.NewDomainError(errors.DomainValidationError, errors.ErrInvalidParticlePosition.Code,
			fmt.Sprintf("particle %s is outside the universe at (%v,%v)", id, p.Position().X, p.Position().Y)))
	}
	if !p.Velocity().IsFinite() {
		validationErrors.Add("velocity", fmt.Sprintf("particle %s has a non-finite velocity", id))
	}
	if !p.State().IsValid() {
		validationErrors.Add("state", fmt.Sprintf("particle %s is in unreachable state %q", id, p.State()))
	}
	if p.DecayLevel() < 0 {
		validationErrors.Add("decayLevel", fmt.Sprintf("particle %s has negative decay level", id))
	}

	if validationErrors.HasErrors() {
		return validationErrors
	}
	return nil
}

// ValidateAll checks every particle and reports all violations together
func (v *ParticleValidator) ValidateAll(particles []*entities.Particle) error {
	all := errors.NewValidationErrors()
	for _, p := range particles {
		if err := v.Validate(p); err != nil {
			if ve, ok := err.(*errors.ValidationErrors); ok {
				for _, e := range ve.Errors {
					all.AddError(e)
				}
			}
		}
	}
	if all.HasErrors() {
		return all
	}
	return nil
}
