package aggregates

import (
	"fmt"
	"time"
)

// UniverseState is the read-model snapshot produced once per successful tick.
// Snapshots are immutable; each tick produces a new one via Next.
type UniverseState struct {
	universeID       string
	tickNumber       int64
	timestamp        time.Time
	activeCount      int
	averageEnergy    float64
	interactionCount int
}

// TickSummary carries the figures a finished tick contributes to its snapshot
type TickSummary struct {
	ActiveCount      int
	AverageEnergy    float64
	InteractionCount int
}

// GenesisState is the state of a universe before its first tick
func GenesisState(universeID string, now time.Time) *UniverseState {
	return &UniverseState{universeID: universeID, timestamp: now}
}

// ReconstructUniverseState rebuilds a stored snapshot
func ReconstructUniverseState(universeID string, tick int64, timestamp time.Time, active int, avgEnergy float64, interactions int) (*UniverseState, error) {
	if universeID == "" {
		return nil, fmt.Errorf("universe ID cannot be empty")
	}
	if tick < 0 || active < 0 || interactions < 0 {
		return nil, fmt.Errorf("universe state counters cannot be negative")
	}
	return &UniverseState{
		universeID:       universeID,
		tickNumber:       tick,
		timestamp:        timestamp,
		activeCount:      active,
		averageEnergy:    avgEnergy,
		interactionCount: interactions,
	}, nil
}

// Next returns the snapshot for the following tick. The tick number always
// advances by exactly one.
func (s *UniverseState) Next(summary TickSummary, now time.Time) *UniverseState {
	return &UniverseState{
		universeID:       s.universeID,
		tickNumber:       s.tickNumber + 1,
		timestamp:        now,
		activeCount:      summary.ActiveCount,
		averageEnergy:    summary.AverageEnergy,
		interactionCount: summary.InteractionCount,
	}
}

func (s *UniverseState) UniverseID() string     { return s.universeID }
func (s *UniverseState) TickNumber() int64      { return s.tickNumber }
func (s *UniverseState) Timestamp() time.Time   { return s.timestamp }
func (s *UniverseState) ActiveCount() int       { return s.activeCount }
func (s *UniverseState) AverageEnergy() float64 { return s.averageEnergy }
func (s *UniverseState) InteractionCount() int  { return s.interactionCount }
