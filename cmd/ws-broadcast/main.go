// Package main implements the Lambda that forwards simulation events from
// EventBridge to connected WebSocket clients.
package main

import (
	"context"
	"encoding/json"
	"log"

	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/di"
	"particle-universe/infrastructure/messaging/websocket"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"go.uber.org/zap"
)

type eventBroadcaster interface {
	Broadcast(ctx context.Context, eventType string, detail json.RawMessage) (websocket.BroadcastResult, error)
}

type broadcastHandler struct {
	broadcaster eventBroadcaster
	logger      *zap.Logger
}

func (h *broadcastHandler) handle(ctx context.Context, event events.CloudWatchEvent) error {
	result, err := h.broadcaster.Broadcast(ctx, event.DetailType, event.Detail)
	if err != nil {
		// Malformed details are not retried
		h.logger.Error("Failed to broadcast event",
			zap.String("eventID", event.ID),
			zap.String("detailType", event.DetailType),
			zap.Error(err),
		)
		return nil
	}

	h.logger.Debug("Broadcast complete",
		zap.String("eventID", event.ID),
		zap.Int("sent", result.Sent),
	)
	return nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	awsCfg, err := di.ProvideAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	store := websocket.NewConnectionStore(di.ProvideDynamoDBClient(awsCfg), cfg.ConnectionsTable, logger)

	// Management API clients are bound to the endpoint a connection came in on
	posters := func(endpoint string) websocket.PostToConnectionAPI {
		if cfg.WebSocketEndpoint != "" {
			endpoint = cfg.WebSocketEndpoint
		}
		return apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
			o.BaseEndpoint = aws.String("https://" + endpoint)
		})
	}

	h := &broadcastHandler{
		broadcaster: websocket.NewBroadcaster(store, posters, logger),
		logger:      logger,
	}

	logger.Info("Starting WebSocket broadcast Lambda", zap.String("table", cfg.ConnectionsTable))
	lambda.Start(h.handle)
}
