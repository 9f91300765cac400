package handlers

import (
	"context"
	"fmt"
	"sort"

	"particle-universe/application/queries"
	"particle-universe/application/services"
	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"

	"go.uber.org/zap"
)

// ParticleQueryHandler serves the particle and universe read operations.
// Every read goes through the reader, so a running tick is never seen half
// written.
type ParticleQueryHandler struct {
	reader *services.UniverseReader
	logger *zap.Logger
}

// NewParticleQueryHandler creates a new particle query handler
func NewParticleQueryHandler(reader *services.UniverseReader, logger *zap.Logger) *ParticleQueryHandler {
	return &ParticleQueryHandler{
		reader: reader,
		logger: logger,
	}
}

// ListActive returns Active and Decaying particles ordered by id. Limit and
// Cursor page through the list; a zero Limit returns everything.
func (h *ParticleQueryHandler) ListActive(ctx context.Context, query queries.ListActiveParticlesQuery) (*queries.ListActiveParticlesResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	live, err := h.reader.LiveParticles(ctx)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get active particles", err)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID().Less(live[j].ID()) })

	start := 0
	if query.Cursor != "" {
		after, err := valueobjects.NewParticleIDFromString(query.Cursor)
		if err != nil {
			return nil, pkgerrors.NewValidationError(queries.ErrInvalidCursor.Error())
		}
		start = sort.Search(len(live), func(i int) bool { return after.Less(live[i].ID()) })
	}

	end := len(live)
	if query.Limit > 0 && start+query.Limit < end {
		end = start + query.Limit
	}

	result := &queries.ListActiveParticlesResult{
		Particles: make([]queries.ParticleView, 0, end-start),
		HasMore:   end < len(live),
	}
	for _, p := range live[start:end] {
		result.Particles = append(result.Particles, queries.NewParticleView(p))
	}
	if result.HasMore && end > start {
		result.NextCursor = live[end-1].ID().String()
	}

	h.logger.Debug("Listed active particles",
		zap.Int("total", len(live)),
		zap.Int("returned", len(result.Particles)),
	)
	return result, nil
}

// GetByUser returns the user's live particle
func (h *ParticleQueryHandler) GetByUser(ctx context.Context, query queries.GetParticleByUserQuery) (*queries.ParticleView, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	p, err := h.reader.ParticleByUser(ctx, query.UserID)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get particle by user", err)
	}
	if p == nil {
		return nil, pkgerrors.NewNotFoundError("particle for user " + query.UserID)
	}

	view := queries.NewParticleView(p)
	return &view, nil
}

// Get returns one particle in any state
func (h *ParticleQueryHandler) Get(ctx context.Context, query queries.GetParticleQuery) (*queries.ParticleView, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	id, err := valueobjects.NewParticleIDFromString(query.ParticleID)
	if err != nil {
		return nil, err
	}
	p, err := h.reader.Particle(ctx, id)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("get particle", err)
	}
	if p == nil {
		return nil, pkgerrors.NewNotFoundError("particle " + query.ParticleID)
	}

	view := queries.NewParticleView(p)
	return &view, nil
}

// UniverseState returns the latest committed universe snapshot
func (h *ParticleQueryHandler) UniverseState(ctx context.Context, query queries.GetUniverseStateQuery) (*queries.UniverseStateView, error) {
	state, err := h.reader.State(ctx)
	if err != nil {
		return nil, err
	}
	view := queries.NewUniverseStateView(state)
	return &view, nil
}

// Neighbors lists Active particles within the radius of a particle
func (h *ParticleQueryHandler) Neighbors(ctx context.Context, query queries.GetNeighborsQuery) (*queries.GetNeighborsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	id, err := valueobjects.NewParticleIDFromString(query.ParticleID)
	if err != nil {
		return nil, err
	}
	found, err := h.reader.Neighbors(ctx, id, query.Radius)
	if err != nil {
		return nil, err
	}
	return queries.NewGetNeighborsResult(query.ParticleID, query.Radius, found), nil
}

// EvaluateInteraction previews the outcome a tick would produce for the pair
func (h *ParticleQueryHandler) EvaluateInteraction(ctx context.Context, query queries.EvaluateInteractionQuery) (*queries.InteractionView, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	a, b, err := parsePair(query.ParticleA, query.ParticleB)
	if err != nil {
		return nil, err
	}
	outcome, err := h.reader.PreviewInteraction(ctx, a, b)
	if err != nil {
		return nil, err
	}
	view := queries.NewInteractionView(outcome)
	return &view, nil
}

// Compatibility scores the personalities of two particles
func (h *ParticleQueryHandler) Compatibility(ctx context.Context, query queries.GetCompatibilityQuery) (*queries.CompatibilityView, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	a, b, err := parsePair(query.ParticleA, query.ParticleB)
	if err != nil {
		return nil, err
	}
	score, err := h.reader.Compatibility(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return &queries.CompatibilityView{
		ParticleA:     query.ParticleA,
		ParticleB:     query.ParticleB,
		Compatibility: score,
	}, nil
}

func parsePair(rawA, rawB string) (valueobjects.ParticleID, valueobjects.ParticleID, error) {
	a, err := valueobjects.NewParticleIDFromString(rawA)
	if err != nil {
		return valueobjects.ParticleID{}, valueobjects.ParticleID{}, err
	}
	b, err := valueobjects.NewParticleIDFromString(rawB)
	if err != nil {
		return valueobjects.ParticleID{}, valueobjects.ParticleID{}, err
	}
	return a, b, nil
}
