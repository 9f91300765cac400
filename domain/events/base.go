package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

func newBase(aggregateID, eventType string, timestamp time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		Timestamp:   timestamp,
		Version:     1,
	}
}

// Event type names as they appear on the bus
const (
	TypeParticleSpawned          = "ParticleSpawned"
	TypeParticleMerged           = "ParticleMerged"
	TypeParticleRepelled         = "ParticleRepelled"
	TypeParticleExpired          = "ParticleExpired"
	TypeParticleInteraction      = "ParticleInteraction"
	TypeParticleDecaying         = "ParticleDecaying"
	TypeParticleReactivated      = "ParticleReactivated"
	TypeParticleStateUpdated     = "ParticleStateUpdated"
	TypeDailyProcessingCompleted = "DailyProcessingCompleted"
)
