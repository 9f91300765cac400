package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	pkgerrors "particle-universe/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ParticleRepository implements ports.ParticleRepository using DynamoDB
type ParticleRepository struct {
	client    API
	tableName string
	logger    *zap.Logger
}

// NewParticleRepository creates a new ParticleRepository
func NewParticleRepository(client API, tableName string, logger *zap.Logger) *ParticleRepository {
	return &ParticleRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// particleItem represents the DynamoDB item structure for a particle
type particleItem struct {
	PK           string  `dynamodbav:"PK"`
	SK           string  `dynamodbav:"SK"`
	GSI1PK       string  `dynamodbav:"GSI1PK"` // USER#<userID>
	GSI1SK       string  `dynamodbav:"GSI1SK"` // PARTICLE#<id>
	GSI2PK       string  `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK       string  `dynamodbav:"GSI2SK,omitempty"`
	EntityType   string  `dynamodbav:"EntityType"`
	ParticleID   string  `dynamodbav:"ParticleID"`
	UserID       string  `dynamodbav:"UserID"`
	PosX         float64 `dynamodbav:"PosX"`
	PosY         float64 `dynamodbav:"PosY"`
	VelX         float64 `dynamodbav:"VelX"`
	VelY         float64 `dynamodbav:"VelY"`
	Mass         float64 `dynamodbav:"Mass"`
	Energy       float64 `dynamodbav:"Energy"`
	State        string  `dynamodbav:"State"`
	ExpiryReason string  `dynamodbav:"ExpiryReason,omitempty"`
	DecayLevel   int     `dynamodbav:"DecayLevel"`
	CreatedAt    string  `dynamodbav:"CreatedAt"`
	UpdatedAt    string  `dynamodbav:"UpdatedAt"`
	LastInputAt  string  `dynamodbav:"LastInputAt,omitempty"`
	Version      int     `dynamodbav:"Version"`
}

func particleKey(id valueobjects.ParticleID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: particlePrefix + id.String()},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// toParticleItem renders the particle as it will be stored at version
func toParticleItem(p *entities.Particle, version int) particleItem {
	d := p.Data()
	item := particleItem{
		PK:           particlePrefix + d.ID.String(),
		SK:           metadataSK,
		GSI1PK:       userPrefix + d.UserID,
		GSI1SK:       particlePrefix + d.ID.String(),
		EntityType:   "PARTICLE",
		ParticleID:   d.ID.String(),
		UserID:       d.UserID,
		PosX:         d.Position.X,
		PosY:         d.Position.Y,
		VelX:         d.Velocity.X,
		VelY:         d.Velocity.Y,
		Mass:         d.Mass,
		Energy:       d.Energy,
		State:        string(d.State),
		ExpiryReason: string(d.ExpiryReason),
		DecayLevel:   d.DecayLevel,
		CreatedAt:    d.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:    d.UpdatedAt.Format(time.RFC3339Nano),
		Version:      version,
	}
	if d.State != entities.StateExpired {
		item.GSI2PK = livePK
		item.GSI2SK = d.ID.String()
	}
	if d.LastInputAt != nil {
		item.LastInputAt = d.LastInputAt.Format(time.RFC3339Nano)
	}
	return item
}

func (item particleItem) toEntity() (*entities.Particle, error) {
	id, err := valueobjects.NewParticleIDFromString(item.ParticleID)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid CreatedAt: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid UpdatedAt: %w", err)
	}
	var lastInput *time.Time
	if item.LastInputAt != "" {
		t, err := time.Parse(time.RFC3339Nano, item.LastInputAt)
		if err != nil {
			return nil, fmt.Errorf("invalid LastInputAt: %w", err)
		}
		lastInput = &t
	}

	return entities.ReconstructParticle(entities.ParticleData{
		ID:           id,
		UserID:       item.UserID,
		Position:     valueobjects.Vec(item.PosX, item.PosY),
		Velocity:     valueobjects.Vec(item.VelX, item.VelY),
		Mass:         item.Mass,
		Energy:       item.Energy,
		State:        entities.ParticleState(item.State),
		ExpiryReason: entities.ExpiryReason(item.ExpiryReason),
		DecayLevel:   item.DecayLevel,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		LastInputAt:  lastInput,
		Version:      item.Version,
	})
}

// versionCondition lets a write through only when the stored item still
// carries the version the particle was loaded at. A particle that was never
// stored has no item to compare against.
const versionCondition = "attribute_not_exists(PK) OR Version = :expected"

func (r *ParticleRepository) put(p *entities.Particle) (*types.Put, error) {
	av, err := attributevalue.MarshalMap(toParticleItem(p, p.NextStoredVersion()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal particle: %w", err)
	}
	return &types.Put{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String(versionCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(p.StoredVersion())},
		},
	}, nil
}

func versionConflict(p *entities.Particle, cause error) error {
	return pkgerrors.NewVersionConflictError("particle "+p.ID().String(), p.StoredVersion()).WithCause(cause)
}

// Save writes a particle if nobody else wrote it since it was loaded
func (r *ParticleRepository) Save(ctx context.Context, particle *entities.Particle) error {
	put, err := r.put(particle)
	if err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		r.logger.Error("Failed to save particle to DynamoDB",
			zap.Error(err),
			zap.String("particleID", particle.ID().String()),
			zap.Int("expectedVersion", particle.StoredVersion()),
			zap.Bool("throttled", isThrottled(err)),
		)
		if isConditionFailed(err) {
			return fmt.Errorf("failed to save particle: %w", versionConflict(particle, err))
		}
		return fmt.Errorf("failed to save particle: %w", classify(err))
	}

	particle.MarkPersisted(particle.NextStoredVersion())
	return nil
}

// GetByID retrieves a particle by its ID
func (r *ParticleRepository) GetByID(ctx context.Context, id valueobjects.ParticleID) (*entities.Particle, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       particleKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get particle: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item particleItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal particle: %w", err)
	}
	return item.toEntity()
}

// GetActiveParticles reads the sparse live index, ordered by id
func (r *ParticleRepository) GetActiveParticles(ctx context.Context) ([]*entities.Particle, error) {
	keyExpr := expression.Key("GSI2PK").Equal(expression.Value(livePK))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(liveIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
}

// GetParticleByUser retrieves the user's live particle
func (r *ParticleRepository) GetParticleByUser(ctx context.Context, userID string) (*entities.Particle, error) {
	keyExpr := expression.Key("GSI1PK").Equal(expression.Value(userPrefix + userID))
	filterExpr := expression.Name("State").NotEqual(expression.Value(string(entities.StateExpired)))
	expr, err := expression.NewBuilder().
		WithKeyCondition(keyExpr).
		WithFilter(filterExpr).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	found, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(userIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > 1 {
		r.logger.Warn("User owns more than one live particle",
			zap.String("userID", userID),
			zap.Int("count", len(found)),
		)
	}
	return found[0], nil
}

// UpdateParticlesBatch writes the batch in TransactWriteItems calls of at
// most 100 items, each guarded by the particle's stored version. Each call is
// atomic; a batch larger than one call is not. Particles in calls that
// committed before a failure are marked persisted, so the caller can tell
// which ones to roll back.
func (r *ParticleRepository) UpdateParticlesBatch(ctx context.Context, particles []*entities.Particle) error {
	for start := 0; start < len(particles); start += maxTransactItems {
		chunk := particles[start:min(start+maxTransactItems, len(particles))]

		items := make([]types.TransactWriteItem, 0, len(chunk))
		for _, p := range chunk {
			put, err := r.put(p)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{Put: put})
		}

		if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
			r.logger.Error("Particle batch write failed",
				zap.Error(err),
				zap.Int("offset", start),
				zap.Int("batchSize", len(particles)),
				zap.Bool("throttled", isThrottled(err)),
			)
			if i := conflictIndex(err); i >= 0 && i < len(chunk) {
				return fmt.Errorf("failed to write particle batch at offset %d: %w", start, versionConflict(chunk[i], err))
			}
			return fmt.Errorf("failed to write particle batch at offset %d: %w", start, classify(err))
		}

		for _, p := range chunk {
			p.MarkPersisted(p.NextStoredVersion())
		}
	}

	r.logger.Debug("Particle batch written", zap.Int("count", len(particles)))
	return nil
}

func (r *ParticleRepository) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]*entities.Particle, error) {
	var out []*entities.Particle
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query particles: %w", classify(err))
		}
		for _, raw := range page.Items {
			var item particleItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal particle item: %w", err)
			}
			// A live particle that cannot be read would silently sit out every tick
			p, err := item.toEntity()
			if err != nil {
				r.logger.Error("Failed to reconstruct particle",
					zap.String("particleID", item.ParticleID),
					zap.Error(err),
				)
				return nil, fmt.Errorf("failed to reconstruct particle %s: %w", item.ParticleID, err)
			}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().Less(out[j].ID()) })
	return out, nil
}
