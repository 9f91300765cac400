// Package main implements the scheduled tick Lambda. An EventBridge schedule
// rule invokes it once per simulation step.
package main

import (
	"context"
	"log"

	"particle-universe/application/commands"
	"particle-universe/application/commands/bus"
	"particle-universe/application/services"
	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/di"
	pkgerrors "particle-universe/pkg/errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

type commandSender interface {
	Send(ctx context.Context, cmd bus.Command) (interface{}, error)
}

type tickHandler struct {
	commands commandSender
	logger   *zap.Logger
}

func (h *tickHandler) handle(ctx context.Context, event events.CloudWatchEvent) (*services.TickReport, error) {
	result, err := h.commands.Send(ctx, commands.TriggerTickCommand{RequestedBy: "scheduler"})
	if err != nil {
		if pkgerrors.IsConcurrentTick(err) {
			// The running tick covers this slot; retrying would double-step
			h.logger.Warn("Scheduled tick skipped, previous tick still running",
				zap.String("eventID", event.ID),
			)
			return nil, nil
		}
		h.logger.Error("Scheduled tick failed", zap.String("eventID", event.ID), zap.Error(err))
		return nil, err
	}

	report := result.(*services.TickReport)
	h.logger.Info("Scheduled tick committed",
		zap.String("eventID", event.ID),
		zap.Int64("tickNumber", report.TickNumber),
		zap.Int("processed", report.Processed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()

	h := &tickHandler{commands: container.CommandBus, logger: container.Logger}
	lambda.Start(h.handle)
}
