package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"particle-universe/domain/core/aggregates"
)

// UniverseStateRepository implements ports.UniverseStateRepository over SQLite
type UniverseStateRepository struct {
	db *sql.DB
}

// GetLatest returns the snapshot with the highest tick number, or nil
func (r *UniverseStateRepository) GetLatest(ctx context.Context, universeID string) (*aggregates.UniverseState, error) {
	var (
		tick, recordedAt    int64
		active, interaction int
		avgEnergy           float64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT tick_number, recorded_at, active_count, average_energy, interaction_count
		 FROM universe_states WHERE universe_id = ? ORDER BY tick_number DESC LIMIT 1`,
		universeID,
	).Scan(&tick, &recordedAt, &active, &avgEnergy, &interaction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest universe state: %w", err)
	}
	return aggregates.ReconstructUniverseState(universeID, tick, fromMillis(recordedAt), active, avgEnergy, interaction)
}

// Save inserts a snapshot; the primary key rejects a duplicate tick
func (r *UniverseStateRepository) Save(ctx context.Context, state *aggregates.UniverseState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO universe_states
		 (universe_id, tick_number, recorded_at, active_count, average_energy, interaction_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		state.UniverseID(), state.TickNumber(), toMillis(state.Timestamp()),
		state.ActiveCount(), state.AverageEnergy(), state.InteractionCount(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tick %d already recorded for universe %s", state.TickNumber(), state.UniverseID())
		}
		return fmt.Errorf("save universe state: %w", err)
	}
	return nil
}
