package eventbridge

import (
	"context"
	"fmt"
	"time"

	"particle-universe/application/ports"
	"particle-universe/domain/events"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for the publisher circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used in production
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "eventbridge",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      4,
	}
}

// BreakingPublisher stops calling a failing event bus until it recovers.
// While open, publishes fail fast and the caller logs and moves on.
type BreakingPublisher struct {
	inner  ports.EventPublisher
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakingPublisher wraps inner with a circuit breaker
func NewBreakingPublisher(inner ports.EventPublisher, cfg BreakerConfig, logger *zap.Logger) *BreakingPublisher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Event bus circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &BreakingPublisher{inner: inner, cb: cb, logger: logger}
}

// Publish publishes one event through the breaker
func (p *BreakingPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch publishes through the breaker
func (p *BreakingPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.inner.PublishBatch(ctx, batch)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("event bus unavailable, dropped %d events: %w", len(batch), err)
	}
	return err
}

// State reports the breaker state, for health checks
func (p *BreakingPublisher) State() gobreaker.State {
	return p.cb.State()
}
