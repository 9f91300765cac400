package handlers

import (
	"context"
	"fmt"

	"particle-universe/application/commands"
	"particle-universe/application/services"

	"go.uber.org/zap"
)

// TickRunner is the part of the tick processor the handler needs
type TickRunner interface {
	ProcessTick(ctx context.Context) (*services.TickReport, error)
}

// Tracer wraps a unit of work in a trace span
type Tracer interface {
	TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error
	AddAnnotation(ctx context.Context, key string, value string)
}

// TriggerTickHandler runs one tick on demand
type TriggerTickHandler struct {
	processor TickRunner
	tracer    Tracer
	logger    *zap.Logger
}

// NewTriggerTickHandler creates a new trigger handler. tracer may be nil.
func NewTriggerTickHandler(processor TickRunner, tracer Tracer, logger *zap.Logger) *TriggerTickHandler {
	return &TriggerTickHandler{
		processor: processor,
		tracer:    tracer,
		logger:    logger,
	}
}

// Handle executes the tick. A tick already in flight yields ConcurrentTickRejected.
func (h *TriggerTickHandler) Handle(ctx context.Context, cmd commands.TriggerTickCommand) (*services.TickReport, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}

	h.logger.Debug("Tick requested", zap.String("requestedBy", cmd.RequestedBy))

	if h.tracer == nil {
		return h.processor.ProcessTick(ctx)
	}

	var report *services.TickReport
	err := h.tracer.TraceFunction(ctx, "ProcessTick", func(ctx context.Context) error {
		h.tracer.AddAnnotation(ctx, "requestedBy", cmd.RequestedBy)
		r, err := h.processor.ProcessTick(ctx)
		report = r
		return err
	})
	return report, err
}
