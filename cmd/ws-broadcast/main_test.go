package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"particle-universe/infrastructure/messaging/websocket"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeBroadcaster struct {
	eventType string
	detail    json.RawMessage
	err       error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, eventType string, detail json.RawMessage) (websocket.BroadcastResult, error) {
	f.eventType = eventType
	f.detail = detail
	return websocket.BroadcastResult{Sent: 1}, f.err
}

func TestHandle_ForwardsDetail(t *testing.T) {
	fake := &fakeBroadcaster{}
	h := &broadcastHandler{broadcaster: fake, logger: zap.NewNop()}

	err := h.handle(context.Background(), events.CloudWatchEvent{
		ID:         "evt-1",
		DetailType: "ParticleSpawned",
		Detail:     json.RawMessage(`{"user_id":"u1"}`),
	})

	assert.NoError(t, err)
	assert.Equal(t, "ParticleSpawned", fake.eventType)
	assert.JSONEq(t, `{"user_id":"u1"}`, string(fake.detail))
}

func TestHandle_SwallowsBroadcastErrors(t *testing.T) {
	h := &broadcastHandler{broadcaster: &fakeBroadcaster{err: errors.New("bad detail")}, logger: zap.NewNop()}

	err := h.handle(context.Background(), events.CloudWatchEvent{DetailType: "ParticleSpawned"})

	assert.NoError(t, err)
}
