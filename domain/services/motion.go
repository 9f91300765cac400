package services

import (
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
)

// MotionIntegrator advances positions by one explicit Euler step and wraps
// them onto the torus.
type MotionIntegrator struct {
	torus valueobjects.Torus
	dt    float64
}

// NewMotionIntegrator creates an integrator
func NewMotionIntegrator(torus valueobjects.Torus, dt float64) *MotionIntegrator {
	return &MotionIntegrator{torus: torus, dt: dt}
}

// Integrate moves every non-expired particle
func (m *MotionIntegrator) Integrate(particles []*entities.Particle) {
	for _, p := range particles {
		if p.IsExpired() {
			continue
		}
		p.Integrate(m.torus, m.dt)
	}
}
