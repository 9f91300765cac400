package dynamodb

import (
	"context"
	"errors"

	pkgerrors "particle-universe/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// API is the subset of the DynamoDB client the repositories use.
// *dynamodb.Client satisfies it.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Key layout of the single simulation table
const (
	particlePrefix    = "PARTICLE#"
	personalityPrefix = "PERSONALITY#"
	universePrefix    = "UNIVERSE#"
	tickPrefix        = "TICK#"
	userPrefix        = "USER#"
	lockPrefix        = "LOCK#"
	metadataSK        = "METADATA"

	// userIndex maps USER#<id> to that user's particles
	userIndex = "GSI1"
	// liveIndex is sparse: only Active and Decaying particles carry LivePK
	liveIndex = "GSI2"
	livePK    = "LIVE"

	// maxTransactItems is the DynamoDB limit for one TransactWriteItems call
	maxTransactItems = 100
)

// isConditionFailed reports whether a conditional write was rejected
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ConditionalCheckFailedException", "TransactionCanceledException":
			return true
		}
	}
	return false
}

// isThrottled reports whether DynamoDB shed the request
func isThrottled(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return true
	}
	return false
}

// conflictIndex returns the position of the first transaction item whose
// condition failed, or -1
func conflictIndex(err error) int {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return -1
	}
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return i
		}
	}
	return -1
}

// classify turns shed load into an unavailable error so callers can tell it
// from a broken request
func classify(err error) error {
	if isThrottled(err) {
		return pkgerrors.NewUnavailableError("dynamodb", err)
	}
	return err
}
