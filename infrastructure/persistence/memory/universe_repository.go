package memory

import (
	"context"
	"fmt"
	"sync"

	"particle-universe/domain/core/aggregates"
)

// UniverseStateRepository keeps every snapshot per universe
type UniverseStateRepository struct {
	mu     sync.RWMutex
	states map[string]map[int64]*aggregates.UniverseState
	latest map[string]int64
}

// NewUniverseStateRepository creates an empty snapshot store
func NewUniverseStateRepository() *UniverseStateRepository {
	return &UniverseStateRepository{
		states: make(map[string]map[int64]*aggregates.UniverseState),
		latest: make(map[string]int64),
	}
}

// GetLatest returns the snapshot with the highest tick number, or nil
func (r *UniverseStateRepository) GetLatest(ctx context.Context, universeID string) (*aggregates.UniverseState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byTick, ok := r.states[universeID]
	if !ok {
		return nil, nil
	}
	return byTick[r.latest[universeID]], nil
}

// Save stores a snapshot; a tick number already present fails
func (r *UniverseStateRepository) Save(ctx context.Context, state *aggregates.UniverseState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byTick, ok := r.states[state.UniverseID()]
	if !ok {
		byTick = make(map[int64]*aggregates.UniverseState)
		r.states[state.UniverseID()] = byTick
	}
	if _, exists := byTick[state.TickNumber()]; exists {
		return fmt.Errorf("tick %d already recorded for universe %s", state.TickNumber(), state.UniverseID())
	}

	byTick[state.TickNumber()] = state
	if state.TickNumber() >= r.latest[state.UniverseID()] {
		r.latest[state.UniverseID()] = state.TickNumber()
	}
	return nil
}
