package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"particle-universe/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentPosts = 16

// PostToConnectionAPI is the part of the management API client the
// broadcaster uses
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// PosterFactory returns a management API client bound to one endpoint
type PosterFactory func(endpoint string) PostToConnectionAPI

// Directory looks up and prunes connections
type Directory interface {
	ForUser(ctx context.Context, userID string) ([]Connection, error)
	All(ctx context.Context) ([]Connection, error)
	Delete(ctx context.Context, connectionID string) error
}

// Message is what clients receive
type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type participants struct {
	UserID         string `json:"user_id"`
	AbsorbedUserID string `json:"absorbed_user_id"`
	UserAID        string `json:"user_a_id"`
	UserBID        string `json:"user_b_id"`
}

// Recipients names the users an event concerns. Broadcast is true for
// events every client receives.
func Recipients(eventType string, detail json.RawMessage) (users []string, broadcast bool, err error) {
	if eventType == events.TypeDailyProcessingCompleted {
		return nil, true, nil
	}

	var p participants
	if err := json.Unmarshal(detail, &p); err != nil {
		return nil, false, fmt.Errorf("failed to decode event detail: %w", err)
	}

	seen := make(map[string]struct{}, 4)
	for _, id := range []string{p.UserID, p.AbsorbedUserID, p.UserAID, p.UserBID} {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	return users, false, nil
}

// BroadcastResult counts delivery outcomes
type BroadcastResult struct {
	Sent   int
	Stale  int
	Failed int
}

// Broadcaster pushes simulation events to WebSocket clients
type Broadcaster struct {
	directory Directory
	posters   PosterFactory
	logger    *zap.Logger
	now       func() time.Time
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster(directory Directory, posters PosterFactory, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		directory: directory,
		posters:   posters,
		logger:    logger,
		now:       time.Now,
	}
}

// Broadcast delivers one event to the connections of the users it concerns.
// Connections the gateway reports as gone are deleted.
func (b *Broadcaster) Broadcast(ctx context.Context, eventType string, detail json.RawMessage) (BroadcastResult, error) {
	users, all, err := Recipients(eventType, detail)
	if err != nil {
		return BroadcastResult{}, err
	}

	conns, err := b.connections(ctx, users, all)
	if err != nil {
		return BroadcastResult{}, err
	}
	if len(conns) == 0 {
		b.logger.Debug("No connections for event", zap.String("eventType", eventType))
		return BroadcastResult{}, nil
	}

	payload, err := json.Marshal(Message{
		Type:      eventType,
		Timestamp: b.now().Unix(),
		Data:      detail,
	})
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("failed to encode message: %w", err)
	}

	var (
		mu     sync.Mutex
		result BroadcastResult
	)
	record := func(f func(*BroadcastResult)) {
		mu.Lock()
		f(&result)
		mu.Unlock()
	}

	clients := make(map[string]PostToConnectionAPI)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPosts)
	for _, conn := range conns {
		client, ok := clients[conn.Endpoint]
		if !ok {
			client = b.posters(conn.Endpoint)
			clients[conn.Endpoint] = client
		}

		g.Go(func() error {
			_, err := client.PostToConnection(gctx, &apigatewaymanagementapi.PostToConnectionInput{
				ConnectionId: aws.String(conn.ConnectionID),
				Data:         payload,
			})
			if err == nil {
				record(func(r *BroadcastResult) { r.Sent++ })
				return nil
			}

			var gone *apigwtypes.GoneException
			if errors.As(err, &gone) {
				record(func(r *BroadcastResult) { r.Stale++ })
				if err := b.directory.Delete(gctx, conn.ConnectionID); err != nil {
					b.logger.Warn("Failed to delete stale connection",
						zap.String("connectionID", conn.ConnectionID),
						zap.Error(err),
					)
				}
				return nil
			}

			record(func(r *BroadcastResult) { r.Failed++ })
			b.logger.Warn("Failed to post to connection",
				zap.String("connectionID", conn.ConnectionID),
				zap.Error(err),
			)
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Info("Event broadcast",
		zap.String("eventType", eventType),
		zap.Int("sent", result.Sent),
		zap.Int("stale", result.Stale),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (b *Broadcaster) connections(ctx context.Context, users []string, all bool) ([]Connection, error) {
	if all {
		return b.directory.All(ctx)
	}

	var out []Connection
	for _, userID := range users {
		conns, err := b.directory.ForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, conns...)
	}
	return out, nil
}
