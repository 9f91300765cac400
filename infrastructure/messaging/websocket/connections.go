// Package websocket keeps track of API Gateway WebSocket connections and
// pushes simulation events to them.
package websocket

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	connectionPrefix = "CONNECTION#"
	userPrefix       = "USER#"
	metadataSK       = "METADATA"
	userIndex        = "GSI1"

	// connectionTTL bounds how long a record outlives a missed $disconnect
	connectionTTL = 24 * time.Hour
)

// ConnectionsAPI is the part of the DynamoDB client the store uses
type ConnectionsAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Connection is one open WebSocket
type Connection struct {
	ConnectionID string
	UserID       string
	Endpoint     string
	ConnectedAt  time.Time
}

type connectionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	GSI1PK       string `dynamodbav:"GSI1PK"`
	GSI1SK       string `dynamodbav:"GSI1SK"`
	ConnectionID string `dynamodbav:"ConnectionID"`
	UserID       string `dynamodbav:"UserID"`
	Endpoint     string `dynamodbav:"Endpoint"`
	ConnectedAt  string `dynamodbav:"ConnectedAt"`
	TTL          int64  `dynamodbav:"TTL"`
}

func (i connectionItem) toConnection() Connection {
	connectedAt, _ := time.Parse(time.RFC3339, i.ConnectedAt)
	return Connection{
		ConnectionID: i.ConnectionID,
		UserID:       i.UserID,
		Endpoint:     i.Endpoint,
		ConnectedAt:  connectedAt,
	}
}

// ConnectionStore persists connections keyed by id, indexed by user
type ConnectionStore struct {
	client    ConnectionsAPI
	tableName string
	logger    *zap.Logger
}

// NewConnectionStore creates a new connection store
func NewConnectionStore(client ConnectionsAPI, tableName string, logger *zap.Logger) *ConnectionStore {
	return &ConnectionStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func connectionKey(connectionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: connectionPrefix + connectionID},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// Save stores a connection with a TTL
func (s *ConnectionStore) Save(ctx context.Context, conn Connection) error {
	item, err := attributevalue.MarshalMap(connectionItem{
		PK:           connectionPrefix + conn.ConnectionID,
		SK:           metadataSK,
		GSI1PK:       userPrefix + conn.UserID,
		GSI1SK:       connectionPrefix + conn.ConnectionID,
		ConnectionID: conn.ConnectionID,
		UserID:       conn.UserID,
		Endpoint:     conn.Endpoint,
		ConnectedAt:  conn.ConnectedAt.UTC().Format(time.RFC3339),
		TTL:          conn.ConnectedAt.Add(connectionTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to store connection: %w", err)
	}

	s.logger.Debug("Stored connection",
		zap.String("connectionID", conn.ConnectionID),
		zap.String("userID", conn.UserID),
	)
	return nil
}

// ForUser lists the open connections of one user
func (s *ConnectionStore) ForUser(ctx context.Context, userID string) ([]Connection, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(userPrefix + userID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(userIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var out []Connection
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query connections: %w", err)
		}
		conns, err := unmarshalConnections(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, conns...)
	}
	return out, nil
}

// All lists every open connection
func (s *ConnectionStore) All(ctx context.Context) ([]Connection, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})

	var out []Connection
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connections: %w", err)
		}
		conns, err := unmarshalConnections(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, conns...)
	}
	return out, nil
}

// Delete removes a connection
func (s *ConnectionStore) Delete(ctx context.Context, connectionID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       connectionKey(connectionID),
	}); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

func unmarshalConnections(items []map[string]types.AttributeValue) ([]Connection, error) {
	var raw []connectionItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
	}
	out := make([]Connection, 0, len(raw))
	for _, item := range raw {
		out = append(out, item.toConnection())
	}
	return out, nil
}
