package main

import (
	"context"
	"errors"
	"testing"

	"particle-universe/application/commands"
	"particle-universe/application/commands/bus"
	"particle-universe/application/services"
	pkgerrors "particle-universe/pkg/errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent   []bus.Command
	result interface{}
	err    error
}

func (f *fakeSender) Send(_ context.Context, cmd bus.Command) (interface{}, error) {
	f.sent = append(f.sent, cmd)
	return f.result, f.err
}

func TestHandle_TriggersTickAsScheduler(t *testing.T) {
	// Arrange
	sender := &fakeSender{result: &services.TickReport{TickNumber: 7}}
	h := &tickHandler{commands: sender, logger: zap.NewNop()}

	// Act
	report, err := h.handle(context.Background(), events.CloudWatchEvent{ID: "evt-1"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.TickNumber)
	assert.Equal(t, []bus.Command{commands.TriggerTickCommand{RequestedBy: "scheduler"}}, sender.sent)
}

func TestHandle_SkipsWhenTickRunning(t *testing.T) {
	h := &tickHandler{commands: &fakeSender{err: pkgerrors.NewConcurrentTickError("main")}, logger: zap.NewNop()}

	report, err := h.handle(context.Background(), events.CloudWatchEvent{})

	assert.NoError(t, err)
	assert.Nil(t, report)
}

func TestHandle_ReturnsOtherFailures(t *testing.T) {
	h := &tickHandler{commands: &fakeSender{err: errors.New("store unavailable")}, logger: zap.NewNop()}

	_, err := h.handle(context.Background(), events.CloudWatchEvent{})

	assert.Error(t, err)
}
