package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"particle-universe/application/ports"
	pkgerrors "particle-universe/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DistributedLock guards ticks across instances with DynamoDB conditional
// writes. It implements ports.TickLock.
type DistributedLock struct {
	client    API
	tableName string
	ownerID   string
	ttl       time.Duration
	logger    *zap.Logger
	clock     func() time.Time
}

// lockRecord represents a lock record in DynamoDB
type lockRecord struct {
	PK         string // LOCK#tick#<universeID>
	SK         string // LOCK
	LockID     string
	Owner      string
	AcquiredAt string // RFC3339
	ExpiresAt  string // RFC3339
	TTL        int64  // Unix timestamp for DynamoDB TTL
}

// NewDistributedLock creates a lock whose records expire after ttl, so a
// crashed instance cannot wedge the universe
func NewDistributedLock(client API, tableName string, ttl time.Duration, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		ownerID:   uuid.New().String(),
		ttl:       ttl,
		logger:    logger,
		clock:     time.Now,
	}
}

func tickResource(universeID string) string {
	return lockPrefix + "tick#" + universeID
}

// Acquire takes the universe's tick lock. A live lock held by anyone
// yields ConcurrentTickRejected.
func (dl *DistributedLock) Acquire(ctx context.Context, universeID string) (ports.ReleaseFunc, error) {
	now := dl.clock().UTC()
	expiresAt := now.Add(dl.ttl)
	record := lockRecord{
		PK:         tickResource(universeID),
		SK:         "LOCK",
		LockID:     fmt.Sprintf("%s_%d", dl.ownerID, now.UnixNano()),
		Owner:      dl.ownerID,
		AcquiredAt: now.Format(time.RFC3339),
		ExpiresAt:  expiresAt.Format(time.RFC3339),
		TTL:        expiresAt.Unix(),
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(dl.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: record.PK},
			"SK":         &types.AttributeValueMemberS{Value: record.SK},
			"LockID":     &types.AttributeValueMemberS{Value: record.LockID},
			"Owner":      &types.AttributeValueMemberS{Value: record.Owner},
			"AcquiredAt": &types.AttributeValueMemberS{Value: record.AcquiredAt},
			"ExpiresAt":  &types.AttributeValueMemberS{Value: record.ExpiresAt},
			"TTL":        &types.AttributeValueMemberN{Value: strconv.FormatInt(record.TTL, 10)},
		},
		// An expired record is fair game; DynamoDB TTL deletion lags by hours
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	}

	if _, err := dl.client.PutItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			dl.logger.Debug("Tick lock already held",
				zap.String("universeID", universeID),
				zap.String("owner", dl.ownerID),
			)
			return nil, pkgerrors.NewConcurrentTickError(universeID)
		}
		return nil, fmt.Errorf("failed to acquire tick lock: %w", err)
	}

	dl.logger.Debug("Tick lock acquired",
		zap.String("universeID", universeID),
		zap.String("lockID", record.LockID),
		zap.Duration("ttl", dl.ttl),
	)

	return func(ctx context.Context) error {
		return dl.release(ctx, record)
	}, nil
}

// release deletes the record only if this acquisition still owns it
func (dl *DistributedLock) release(ctx context.Context, record lockRecord) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: record.PK},
			"SK": &types.AttributeValueMemberS{Value: record.SK},
		},
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: record.LockID},
			":owner":  &types.AttributeValueMemberS{Value: record.Owner},
		},
	}

	if _, err := dl.client.DeleteItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			dl.logger.Warn("Tick lock expired and was taken over before release",
				zap.String("resource", record.PK),
				zap.String("lockID", record.LockID),
			)
			return nil // Lock is already gone, which is what we wanted
		}
		return fmt.Errorf("failed to release tick lock: %w", err)
	}

	dl.logger.Debug("Tick lock released",
		zap.String("resource", record.PK),
		zap.String("lockID", record.LockID),
	)
	return nil
}
