// Package main implements the WebSocket $connect and $disconnect Lambda.
// Clients authenticate with the same JWT the REST API accepts.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/di"
	"particle-universe/infrastructure/messaging/websocket"
	"particle-universe/pkg/auth"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

const disconnectRoute = "$disconnect"

type connectionStore interface {
	Save(ctx context.Context, conn websocket.Connection) error
	Delete(ctx context.Context, connectionID string) error
}

type connectHandler struct {
	store     connectionStore
	validator *auth.JWTValidator
	logger    *zap.Logger
	now       func() time.Time
}

func (h *connectHandler) handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID

	if req.RequestContext.RouteKey == disconnectRoute {
		if err := h.store.Delete(ctx, connectionID); err != nil {
			h.logger.Error("Failed to delete connection",
				zap.String("connectionID", connectionID),
				zap.Error(err),
			)
			return respond(http.StatusInternalServerError, map[string]string{"error": "internal server error"}), nil
		}
		h.logger.Info("WebSocket disconnected", zap.String("connectionID", connectionID))
		return respond(http.StatusOK, nil), nil
	}

	claims, err := h.validator.ValidateToken(tokenFrom(req))
	if err != nil {
		h.logger.Warn("WebSocket authentication failed",
			zap.String("connectionID", connectionID),
			zap.Error(err),
		)
		return respond(http.StatusUnauthorized, map[string]string{"error": "unauthorized"}), nil
	}

	conn := websocket.Connection{
		ConnectionID: connectionID,
		UserID:       claims.UserID,
		Endpoint:     req.RequestContext.DomainName + "/" + req.RequestContext.Stage,
		ConnectedAt:  h.now(),
	}
	if err := h.store.Save(ctx, conn); err != nil {
		h.logger.Error("Failed to store connection",
			zap.String("connectionID", connectionID),
			zap.Error(err),
		)
		return respond(http.StatusInternalServerError, map[string]string{"error": "internal server error"}), nil
	}

	h.logger.Info("WebSocket connected",
		zap.String("connectionID", connectionID),
		zap.String("userID", claims.UserID),
	)
	return respond(http.StatusOK, map[string]interface{}{
		"type":         "connection_established",
		"connectionId": connectionID,
		"userId":       claims.UserID,
		"timestamp":    conn.ConnectedAt.Unix(),
	}), nil
}

// tokenFrom reads the token from the query string, falling back to the
// Authorization header since browsers cannot set headers on WebSocket upgrades
func tokenFrom(req events.APIGatewayWebsocketProxyRequest) string {
	if token := req.QueryStringParameters["token"]; token != "" {
		return token
	}
	for name, value := range req.Headers {
		if strings.EqualFold(name, "Authorization") {
			return strings.TrimSpace(strings.TrimPrefix(value, "Bearer "))
		}
	}
	return ""
}

func respond(status int, body interface{}) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{StatusCode: status}
	if body != nil {
		data, _ := json.Marshal(body)
		resp.Body = string(data)
	}
	return resp
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

	validator, err := di.ProvideJWTValidator(cfg)
	if err != nil {
		log.Fatalf("Failed to create JWT validator: %v", err)
	}

	h := &connectHandler{
		store:     websocket.NewConnectionStore(di.ProvideDynamoDBClient(awsCfg), cfg.ConnectionsTable, logger),
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}

	logger.Info("Starting WebSocket connect Lambda", zap.String("table", cfg.ConnectionsTable))
	lambda.Start(h.handle)
}
