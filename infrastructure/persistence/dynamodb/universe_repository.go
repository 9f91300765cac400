package dynamodb

import (
	"context"
	"fmt"
	"time"

	"particle-universe/domain/core/aggregates"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// UniverseStateRepository stores one item per tick under UNIVERSE#<id>
type UniverseStateRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

// NewUniverseStateRepository creates a new UniverseStateRepository
func NewUniverseStateRepository(client API, tableName string, logger *zap.Logger) *UniverseStateRepository {
	return &UniverseStateRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type universeItem struct {
	PK               string  `dynamodbav:"PK"` // UNIVERSE#<id>
	SK               string  `dynamodbav:"SK"` // TICK#<zero-padded tick>
	EntityType       string  `dynamodbav:"EntityType"`
	UniverseID       string  `dynamodbav:"UniverseID"`
	TickNumber       int64   `dynamodbav:"TickNumber"`
	Timestamp        string  `dynamodbav:"Timestamp"`
	ActiveCount      int     `dynamodbav:"ActiveCount"`
	AverageEnergy    float64 `dynamodbav:"AverageEnergy"`
	InteractionCount int     `dynamodbav:"InteractionCount"`
}

func tickSK(tick int64) string {
	return fmt.Sprintf("%s%020d", tickPrefix, tick)
}

// GetLatest returns the snapshot with the highest tick number, or nil
func (r *UniverseStateRepository) GetLatest(ctx context.Context, universeID string) (*aggregates.UniverseState, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(universePrefix + universeID)).
		And(expression.Key("SK").BeginsWith(tickPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query universe state: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var item universeItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal universe state: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, item.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid Timestamp: %w", err)
	}
	return aggregates.ReconstructUniverseState(item.UniverseID, item.TickNumber, ts, item.ActiveCount, item.AverageEnergy, item.InteractionCount)
}

// Save writes a new snapshot with attribute_not_exists, so a tick number is
// recorded at most once even across instances
func (r *UniverseStateRepository) Save(ctx context.Context, state *aggregates.UniverseState) error {
	av, err := attributevalue.MarshalMap(universeItem{
		PK:               universePrefix + state.UniverseID(),
		SK:               tickSK(state.TickNumber()),
		EntityType:       "UNIVERSE_STATE",
		UniverseID:       state.UniverseID(),
		TickNumber:       state.TickNumber(),
		Timestamp:        state.Timestamp().Format(time.RFC3339Nano),
		ActiveCount:      state.ActiveCount(),
		AverageEnergy:    state.AverageEnergy(),
		InteractionCount: state.InteractionCount(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal universe state: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("tick %d already recorded for universe %s: %w", state.TickNumber(), state.UniverseID(), err)
		}
		return fmt.Errorf("failed to save universe state: %w", err)
	}

	r.logger.Debug("Universe state saved",
		zap.String("universeID", state.UniverseID()),
		zap.Int64("tickNumber", state.TickNumber()),
	)
	return nil
}
