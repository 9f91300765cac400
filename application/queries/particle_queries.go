package queries

import (
	"errors"
	"time"

	"particle-universe/application/services"
	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	domainservices "particle-universe/domain/services"
	"particle-universe/pkg/utils"
)

// ListActiveParticlesQuery lists every Active or Decaying particle
type ListActiveParticlesQuery struct {
	Limit  int    `validate:"omitempty,min=1,max=1000"`
	Cursor string `validate:"omitempty"`
}

// Validate validates the query
func (q ListActiveParticlesQuery) Validate() error { return utils.ValidateStruct(q) }

// GetParticleByUserQuery finds a user's live particle
type GetParticleByUserQuery struct {
	UserID string `validate:"required"`
}

// Validate validates the query
func (q GetParticleByUserQuery) Validate() error { return utils.ValidateStruct(q) }

// GetParticleQuery loads one particle in any state
type GetParticleQuery struct {
	ParticleID string `validate:"required,uuid"`
}

// Validate validates the query
func (q GetParticleQuery) Validate() error { return utils.ValidateStruct(q) }

// GetUniverseStateQuery returns the latest committed universe snapshot
type GetUniverseStateQuery struct{}

// Validate validates the query
func (q GetUniverseStateQuery) Validate() error { return nil }

// GetNeighborsQuery lists Active particles near one particle
type GetNeighborsQuery struct {
	ParticleID string  `validate:"required,uuid"`
	Radius     float64 `validate:"gte=0"`
}

// Validate validates the query
func (q GetNeighborsQuery) Validate() error { return utils.ValidateStruct(q) }

// EvaluateInteractionQuery previews what a tick would do to a pair
type EvaluateInteractionQuery struct {
	ParticleA string `validate:"required,uuid"`
	ParticleB string `validate:"required,uuid"`
}

// Validate validates the query
func (q EvaluateInteractionQuery) Validate() error { return utils.ValidateStruct(q) }

// GetCompatibilityQuery scores two particles' personalities
type GetCompatibilityQuery struct {
	ParticleA string `validate:"required,uuid"`
	ParticleB string `validate:"required,uuid"`
}

// Validate validates the query
func (q GetCompatibilityQuery) Validate() error { return utils.ValidateStruct(q) }

// ErrInvalidCursor is returned for a cursor that does not name a particle
var ErrInvalidCursor = errors.New("invalid cursor")

// ParticleView is the read model of a particle
type ParticleView struct {
	ID           string               `json:"id"`
	UserID       string               `json:"userId"`
	Position     valueobjects.Vector2 `json:"position"`
	Velocity     valueobjects.Vector2 `json:"velocity"`
	Mass         float64              `json:"mass"`
	Energy       float64              `json:"energy"`
	State        string               `json:"state"`
	ExpiryReason string               `json:"expiryReason,omitempty"`
	DecayLevel   int                  `json:"decayLevel"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	LastInputAt  *time.Time           `json:"lastInputAt,omitempty"`
	Version      int                  `json:"version"`
}

// NewParticleView maps an entity to its read model
func NewParticleView(p *entities.Particle) ParticleView {
	return ParticleView{
		ID:           p.ID().String(),
		UserID:       p.UserID(),
		Position:     p.Position(),
		Velocity:     p.Velocity(),
		Mass:         p.Mass(),
		Energy:       p.Energy(),
		State:        string(p.State()),
		ExpiryReason: string(p.ExpiryReason()),
		DecayLevel:   p.DecayLevel(),
		CreatedAt:    p.CreatedAt(),
		UpdatedAt:    p.UpdatedAt(),
		LastInputAt:  p.LastInputAt(),
		Version:      p.Version(),
	}
}

// ListActiveParticlesResult is one page of live particles
type ListActiveParticlesResult struct {
	Particles  []ParticleView `json:"particles"`
	NextCursor string         `json:"nextCursor,omitempty"`
	HasMore    bool           `json:"hasMore"`
}

// UniverseStateView is the read model of a universe snapshot
type UniverseStateView struct {
	UniverseID       string    `json:"universeId"`
	TickNumber       int64     `json:"tickNumber"`
	Timestamp        time.Time `json:"timestamp"`
	ActiveCount      int       `json:"activeCount"`
	AverageEnergy    float64   `json:"averageEnergy"`
	InteractionCount int       `json:"interactionCount"`
}

// NewUniverseStateView maps a snapshot to its read model
func NewUniverseStateView(s *aggregates.UniverseState) UniverseStateView {
	return UniverseStateView{
		UniverseID:       s.UniverseID(),
		TickNumber:       s.TickNumber(),
		Timestamp:        s.Timestamp(),
		ActiveCount:      s.ActiveCount(),
		AverageEnergy:    s.AverageEnergy(),
		InteractionCount: s.InteractionCount(),
	}
}

// NeighborView is one neighbor with its wrapped distance
type NeighborView struct {
	Particle ParticleView `json:"particle"`
	Distance float64      `json:"distance"`
}

// GetNeighborsResult lists the neighbors of a particle, nearest first
type GetNeighborsResult struct {
	ParticleID string         `json:"particleId"`
	Radius     float64        `json:"radius"`
	Neighbors  []NeighborView `json:"neighbors"`
}

// NewGetNeighborsResult maps reader results to the read model
func NewGetNeighborsResult(id string, radius float64, found []services.NeighborResult) *GetNeighborsResult {
	out := &GetNeighborsResult{ParticleID: id, Radius: radius, Neighbors: make([]NeighborView, 0, len(found))}
	for _, n := range found {
		out.Neighbors = append(out.Neighbors, NeighborView{Particle: NewParticleView(n.Particle), Distance: n.Distance})
	}
	return out
}

// InteractionView is the read model of an interaction outcome
type InteractionView struct {
	ParticleA     string  `json:"particleA"`
	ParticleB     string  `json:"particleB"`
	Type          string  `json:"type"`
	Strength      float64 `json:"strength"`
	Compatibility float64 `json:"compatibility"`
	Description   string  `json:"description"`
}

// NewInteractionView maps an outcome to its read model
func NewInteractionView(o domainservices.Outcome) InteractionView {
	a, b := o.Pair()
	return InteractionView{
		ParticleA:     a.String(),
		ParticleB:     b.String(),
		Type:          o.Type().String(),
		Strength:      o.Strength(),
		Compatibility: o.Compatibility(),
		Description:   o.Description(),
	}
}

// CompatibilityView is the read model of a compatibility score
type CompatibilityView struct {
	ParticleA     string  `json:"particleA"`
	ParticleB     string  `json:"particleB"`
	Compatibility float64 `json:"compatibility"`
}
