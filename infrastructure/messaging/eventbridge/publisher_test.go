package eventbridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"particle-universe/domain/events"
	"particle-universe/infrastructure/messaging/eventbridge"
	pkgerrors "particle-universe/pkg/errors"
	"particle-universe/tests/fixtures"
	"particle-universe/tests/mocks"
)

type fakeBus struct {
	calls  []*awseventbridge.PutEventsInput
	failAt int // 1-based call index that reports a failed entry, 0 for never
	err    error
}

func (f *fakeBus) PutEvents(ctx context.Context, in *awseventbridge.PutEventsInput, _ ...func(*awseventbridge.Options)) (*awseventbridge.PutEventsOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	out := &awseventbridge.PutEventsOutput{Entries: make([]types.PutEventsResultEntry, len(in.Entries))}
	if f.failAt == len(f.calls) {
		out.FailedEntryCount = 1
		out.Entries[0].ErrorCode = aws.String("InternalFailure")
	}
	return out, nil
}

func expiredEvents(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, events.NewParticleExpired(fixtures.ID(i), "user", "inactivity", 7, fixtures.FixedNow))
	}
	return out
}

func TestPublisher_BatchesOfTen(t *testing.T) {
	// Arrange
	bus := &fakeBus{}
	publisher := eventbridge.NewPublisher(bus, "sim-bus", zap.NewNop())

	// Act
	err := publisher.PublishBatch(context.Background(), expiredEvents(23))

	// Assert
	require.NoError(t, err)
	require.Len(t, bus.calls, 3)
	assert.Len(t, bus.calls[0].Entries, 10)
	assert.Len(t, bus.calls[1].Entries, 10)
	assert.Len(t, bus.calls[2].Entries, 3)

	entry := bus.calls[0].Entries[0]
	assert.Equal(t, "sim-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, eventbridge.Source, aws.ToString(entry.Source))
	assert.Equal(t, events.TypeParticleExpired, aws.ToString(entry.DetailType))

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, fixtures.ID(1).String(), detail["aggregate_id"])
}

func TestPublisher_Failures(t *testing.T) {
	t.Run("failed entry stops the batch", func(t *testing.T) {
		bus := &fakeBus{failAt: 1}
		publisher := eventbridge.NewPublisher(bus, "sim-bus", zap.NewNop())

		err := publisher.PublishBatch(context.Background(), expiredEvents(15))

		assert.ErrorIs(t, err, pkgerrors.ErrEventSinkFailure)
		assert.Len(t, bus.calls, 1)
	})

	t.Run("transport error", func(t *testing.T) {
		bus := &fakeBus{err: errors.New("dial tcp: timeout")}
		publisher := eventbridge.NewPublisher(bus, "sim-bus", zap.NewNop())

		err := publisher.Publish(context.Background(), expiredEvents(1)[0])

		assert.ErrorContains(t, err, "timeout")
		assert.ErrorIs(t, err, pkgerrors.ErrEventSinkFailure)
	})
}

func TestBreakingPublisher_OpensAfterFailures(t *testing.T) {
	// Arrange
	inner := &mocks.MockEventPublisher{}
	inner.On("PublishBatch", mock.Anything, mock.Anything).Return(errors.New("bus down"))
	cfg := eventbridge.DefaultBreakerConfig()
	cfg.Timeout = time.Hour
	publisher := eventbridge.NewBreakingPublisher(inner, cfg, zap.NewNop())
	batch := expiredEvents(1)

	// Act
	for i := 0; i < int(cfg.MinRequests); i++ {
		assert.Error(t, publisher.PublishBatch(context.Background(), batch))
	}
	err := publisher.PublishBatch(context.Background(), batch)

	// Assert
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, publisher.State())
	inner.AssertNumberOfCalls(t, "PublishBatch", int(cfg.MinRequests))
}

func TestNoopPublisher(t *testing.T) {
	publisher := eventbridge.NewNoopPublisher(zap.NewNop())

	assert.NoError(t, publisher.PublishBatch(context.Background(), expiredEvents(3)))
}
