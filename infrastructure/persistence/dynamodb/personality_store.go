package dynamodb

import (
	"context"
	"fmt"
	"time"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// PersonalityStore keeps every metrics version under the particle's partition
type PersonalityStore struct {
	client    API
	tableName string
	logger    *zap.Logger
}

// NewPersonalityStore creates a new PersonalityStore
func NewPersonalityStore(client API, tableName string, logger *zap.Logger) *PersonalityStore {
	return &PersonalityStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type personalityItem struct {
	PK              string  `dynamodbav:"PK"` // PARTICLE#<id>
	SK              string  `dynamodbav:"SK"` // PERSONALITY#<zero-padded version>
	EntityType      string  `dynamodbav:"EntityType"`
	ParticleID      string  `dynamodbav:"ParticleID"`
	Version         int     `dynamodbav:"Version"`
	Curiosity       float64 `dynamodbav:"Curiosity"`
	SocialAffinity  float64 `dynamodbav:"SocialAffinity"`
	Aggression      float64 `dynamodbav:"Aggression"`
	Stability       float64 `dynamodbav:"Stability"`
	GrowthPotential float64 `dynamodbav:"GrowthPotential"`
	RecordedAt      string  `dynamodbav:"RecordedAt"`
}

// GetLatestMetrics returns the highest metrics version, or nil
func (s *PersonalityStore) GetLatestMetrics(ctx context.Context, particleID valueobjects.ParticleID) (*entities.PersonalityMetrics, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(particlePrefix + particleID.String())).
		And(expression.Key("SK").BeginsWith(personalityPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query personality metrics: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var item personalityItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal personality metrics: %w", err)
	}
	recordedAt, err := time.Parse(time.RFC3339Nano, item.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid RecordedAt: %w", err)
	}

	traits := valueobjects.TraitVector{
		Curiosity:       item.Curiosity,
		SocialAffinity:  item.SocialAffinity,
		Aggression:      item.Aggression,
		Stability:       item.Stability,
		GrowthPotential: item.GrowthPotential,
	}
	return entities.NewPersonalityMetrics(particleID, traits, item.Version, recordedAt)
}

// SaveMetrics stores a new version; an existing version is never overwritten
func (s *PersonalityStore) SaveMetrics(ctx context.Context, metrics *entities.PersonalityMetrics) error {
	t := metrics.Traits()
	item := personalityItem{
		PK:              particlePrefix + metrics.ParticleID().String(),
		SK:              fmt.Sprintf("%s%010d", personalityPrefix, metrics.Version()),
		EntityType:      "PERSONALITY",
		ParticleID:      metrics.ParticleID().String(),
		Version:         metrics.Version(),
		Curiosity:       t.Curiosity,
		SocialAffinity:  t.SocialAffinity,
		Aggression:      t.Aggression,
		Stability:       t.Stability,
		GrowthPotential: t.GrowthPotential,
		RecordedAt:      metrics.RecordedAt().Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal personality metrics: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("metrics version %d already stored for particle %s: %w", metrics.Version(), metrics.ParticleID(), err)
		}
		return fmt.Errorf("failed to save personality metrics: %w", err)
	}

	s.logger.Debug("Personality metrics saved",
		zap.String("particleID", metrics.ParticleID().String()),
		zap.Int("version", metrics.Version()),
	)
	return nil
}
