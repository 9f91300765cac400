package services

import (
	"time"

	"particle-universe/domain/config"
	"particle-universe/domain/core/entities"
)

// Transition names what the lifecycle did to a particle on one tick
type Transition string

const (
	TransitionNone        Transition = "none"
	TransitionDecaying    Transition = "decaying"
	TransitionDecayDeeper Transition = "decay_deepened"
	TransitionReactivated Transition = "reactivated"
	TransitionExpired     Transition = "expired"
)

// LifecycleManager applies the decay, reactivation and expiry rules to one
// particle. Merged expiry is not decided here; it comes from the resolver.
type LifecycleManager struct {
	cfg config.LifecycleConfig
}

// NewLifecycleManager creates a lifecycle manager
func NewLifecycleManager(cfg config.LifecycleConfig) *LifecycleManager {
	return &LifecycleManager{cfg: cfg}
}

// Apply evaluates the particle at time now and performs at most one transition
func (m *LifecycleManager) Apply(p *entities.Particle, now time.Time) (Transition, error) {
	inactive := p.InactiveFor(now) > m.cfg.DecayInactivityThreshold

	switch p.State() {
	case entities.StateActive:
		if !inactive {
			return TransitionNone, nil
		}
		if err := p.BeginDecay(now); err != nil {
			return TransitionNone, err
		}
		return TransitionDecaying, nil

	case entities.StateDecaying:
		// input arrived since the particle started decaying
		if !inactive {
			if err := p.Reactivate(now); err != nil {
				return TransitionNone, err
			}
			return TransitionReactivated, nil
		}

		if err := p.DeepenDecay(now); err != nil {
			return TransitionNone, err
		}
		p.DrainEnergy(m.cfg.DecayEnergyLoss)

		if p.DecayLevel() > m.cfg.MaxDecayLevel {
			if err := p.Expire(entities.ReasonInactivity, now); err != nil {
				return TransitionNone, err
			}
			return TransitionExpired, nil
		}
		return TransitionDecayDeeper, nil

	default:
		return TransitionNone, nil
	}
}
