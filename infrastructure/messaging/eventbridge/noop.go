package eventbridge

import (
	"context"

	"particle-universe/domain/events"

	"go.uber.org/zap"
)

// NoopPublisher drops events, logging them at debug level. Used when event
// publishing is disabled.
type NoopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher creates a publisher that discards everything
func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// Publish discards the event
func (p *NoopPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.logger.Debug("Event dropped", zap.String("eventType", event.GetEventType()), zap.String("aggregateID", event.GetAggregateID()))
	return nil
}

// PublishBatch discards the events
func (p *NoopPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		_ = p.Publish(ctx, event)
	}
	return nil
}
