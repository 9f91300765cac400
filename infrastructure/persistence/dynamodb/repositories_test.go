package dynamodb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/entities"
	pkgerrors "particle-universe/pkg/errors"
	"particle-universe/tests/fixtures"
)

// fakeTable is a small single-table DynamoDB stand-in. It understands the
// key shapes the repositories use, not the expression language.
type fakeTable struct {
	mu           sync.Mutex
	items        map[string]map[string]types.AttributeValue
	transactions int

	// failTransaction makes the n-th TransactWriteItems call (1-based) fail
	failTransaction int
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func num(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		return v.Value
	}
	return ""
}

func keyOf(item map[string]types.AttributeValue) string {
	return str(item, "PK") + "|" + str(item, "SK")
}

// versionHolds evaluates the particle version condition against the
// current item
func (f *fakeTable) versionHolds(item map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	existing, ok := f.items[keyOf(item)]
	return !ok || num(existing, "Version") == num(values, ":expected")
}

func (f *fakeTable) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := keyOf(in.Item)
	if in.ConditionExpression != nil && *in.ConditionExpression == versionCondition {
		if !f.versionHolds(in.Item, in.ExpressionAttributeValues) {
			return nil, &types.ConditionalCheckFailedException{Message: new(string)}
		}
		f.items[k] = in.Item
		return &dynamodb.PutItemOutput{}, nil
	}
	if existing, ok := f.items[k]; ok && in.ConditionExpression != nil {
		cond := *in.ConditionExpression
		expiredLock := strings.Contains(cond, "ExpiresAt < :now") &&
			str(existing, "ExpiresAt") < str(in.ExpressionAttributeValues, ":now")
		if !expiredLock {
			return nil, &types.ConditionalCheckFailedException{Message: new(string)}
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := keyOf(in.Key)
	existing, ok := f.items[k]
	if !ok || (in.ConditionExpression != nil && str(existing, "LockID") != str(in.ExpressionAttributeValues, ":lockId")) {
		return nil, &types.ConditionalCheckFailedException{Message: new(string)}
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeTable) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.transactions++
	if f.transactions == f.failTransaction {
		return nil, &smithy.GenericAPIError{Code: "InternalServerError", Message: "injected"}
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false
	for i, ti := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		if ti.Put.ConditionExpression != nil && !f.versionHolds(ti.Put.Item, ti.Put.ExpressionAttributeValues) {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			cancelled = true
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, ti := range in.TransactItems {
		f.items[keyOf(ti.Put.Item)] = ti.Put.Item
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// Query matches items whose partition attribute equals one bound value and,
// for the base table, whose SK starts with another
func (f *fakeTable) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var bound []string
	for _, v := range in.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			bound = append(bound, s.Value)
		}
	}
	has := func(s string) bool {
		for _, b := range bound {
			if b == s {
				return true
			}
		}
		return false
	}
	hasPrefix := func(s string) bool {
		for _, b := range bound {
			if b != "" && strings.HasPrefix(s, b) {
				return true
			}
		}
		return false
	}

	partition := "PK"
	if in.IndexName != nil {
		partition = map[string]string{userIndex: "GSI1PK", liveIndex: "GSI2PK"}[*in.IndexName]
	}

	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if !has(str(item, partition)) {
			continue
		}
		if in.IndexName == nil && !hasPrefix(str(item, "SK")) {
			continue
		}
		if in.FilterExpression != nil && has(str(item, "State")) {
			continue
		}
		out = append(out, item)
	}

	sort.Slice(out, func(i, j int) bool { return str(out[i], "SK") < str(out[j], "SK") })
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(out) {
		out = out[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func TestParticleRepository_SaveAndLoad(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewParticleRepository(newFakeTable(), "particles", zap.NewNop())
	p := fixtures.NewParticleBuilder().WithUserID("user-1").WithPosition(1.5, 2.5).
		WithVelocity(0.1, -0.2).WithDecayLevel(0).MustBuild()

	// Act
	require.NoError(t, repo.Save(ctx, p))
	loaded, err := repo.GetByID(ctx, p.ID())
	require.NoError(t, err)
	byUser, err := repo.GetParticleByUser(ctx, "user-1")
	require.NoError(t, err)
	missing, err := repo.GetByID(ctx, fixtures.ID(77))
	require.NoError(t, err)

	// Assert
	require.NotNil(t, loaded)
	assert.Equal(t, p.Data(), loaded.Data())
	require.NotNil(t, byUser)
	assert.Equal(t, p.ID(), byUser.ID())
	assert.Nil(t, missing)
}

func TestParticleRepository_BatchChunksAndLiveIndex(t *testing.T) {
	// Arrange
	ctx := context.Background()
	table := newFakeTable()
	repo := NewParticleRepository(table, "particles", zap.NewNop())

	batch := make([]*entities.Particle, 0, 150)
	for i := 1; i <= 150; i++ {
		b := fixtures.NewParticleBuilder().WithID(fixtures.ID(i))
		if i%3 == 0 {
			b = b.WithState(entities.StateExpired)
		}
		batch = append(batch, b.MustBuild())
	}

	// Act
	require.NoError(t, repo.UpdateParticlesBatch(ctx, batch))
	live, err := repo.GetActiveParticles(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, table.transactions)
	assert.Len(t, live, 100)
	assert.Equal(t, fixtures.ID(1), live[0].ID())
	for _, p := range live {
		assert.False(t, p.IsExpired())
	}
}

func TestParticleRepository_StaleSaveIsAConflict(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewParticleRepository(newFakeTable(), "particles", zap.NewNop())
	p := fixtures.NewParticleBuilder().WithUserID("user-3").MustBuild()
	require.NoError(t, repo.Save(ctx, p))

	first, err := repo.GetByID(ctx, p.ID())
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, p.ID())
	require.NoError(t, err)

	// Act
	firstErr := repo.Save(ctx, first)
	secondErr := repo.Save(ctx, second)

	// Assert
	require.NoError(t, firstErr)
	assert.ErrorIs(t, secondErr, pkgerrors.ErrConcurrentModification)
	stored, err := repo.GetByID(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, first.Version(), stored.Version())
}

func TestParticleRepository_BatchConflictNamesTheParticle(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewParticleRepository(newFakeTable(), "particles", zap.NewNop())
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithUserID("a").MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithUserID("b").MustBuild()
	require.NoError(t, repo.UpdateParticlesBatch(ctx, []*entities.Particle{a, b}))

	loadedA, err := repo.GetByID(ctx, a.ID())
	require.NoError(t, err)
	loadedB, err := repo.GetByID(ctx, b.ID())
	require.NoError(t, err)
	concurrent, err := repo.GetByID(ctx, b.ID())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, concurrent))

	// Act
	err = repo.UpdateParticlesBatch(ctx, []*entities.Particle{loadedA, loadedB})

	// Assert
	assert.ErrorIs(t, err, pkgerrors.ErrConcurrentModification)
	assert.Contains(t, err.Error(), "CONCURRENT_MODIFICATION")
	var conflict *pkgerrors.DomainError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "particle "+b.ID().String(), conflict.Details["resource"])
	storedA, err := repo.GetByID(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, loadedA.StoredVersion(), storedA.Version(), "a cancelled transaction writes nothing")
}

func TestParticleRepository_PartialBatchMarksCommittedChunks(t *testing.T) {
	// Arrange
	ctx := context.Background()
	table := newFakeTable()
	repo := NewParticleRepository(table, "particles", zap.NewNop())
	batch := make([]*entities.Particle, 0, 150)
	for i := 1; i <= 150; i++ {
		batch = append(batch, fixtures.NewParticleBuilder().WithID(fixtures.ID(i)).MustBuild())
	}
	table.failTransaction = 2

	// Act
	err := repo.UpdateParticlesBatch(ctx, batch)

	// Assert
	require.Error(t, err)
	assert.Equal(t, 2, batch[0].StoredVersion())
	assert.Equal(t, 2, batch[99].StoredVersion())
	assert.Equal(t, 1, batch[100].StoredVersion())
	assert.Equal(t, 1, batch[149].StoredVersion())
}

func TestParticleRepository_ThrottlingIsUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := NewParticleRepository(throttledTable{newFakeTable()}, "particles", zap.NewNop())

	err := repo.Save(ctx, fixtures.NewParticleBuilder().MustBuild())

	assert.ErrorIs(t, err, pkgerrors.ErrUnavailable)
}

type throttledTable struct{ *fakeTable }

func (throttledTable) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException", Message: "slow down"}
}

func TestParticleRepository_UnreadableLiveItemFailsTheLoad(t *testing.T) {
	// Arrange
	ctx := context.Background()
	table := newFakeTable()
	repo := NewParticleRepository(table, "particles", zap.NewNop())
	p := fixtures.NewParticleBuilder().MustBuild()
	require.NoError(t, repo.Save(ctx, p))
	for _, item := range table.items {
		item["Mass"] = &types.AttributeValueMemberN{Value: "0"}
	}

	// Act
	live, err := repo.GetActiveParticles(ctx)

	// Assert
	require.Error(t, err)
	assert.Nil(t, live)
}

func TestParticleRepository_ExpiredUserParticleIsHidden(t *testing.T) {
	ctx := context.Background()
	repo := NewParticleRepository(newFakeTable(), "particles", zap.NewNop())
	p := fixtures.NewParticleBuilder().WithUserID("user-9").WithState(entities.StateExpired).MustBuild()
	require.NoError(t, repo.Save(ctx, p))

	found, err := repo.GetParticleByUser(ctx, "user-9")

	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPersonalityStore_NewestVersionWins(t *testing.T) {
	ctx := context.Background()
	store := NewPersonalityStore(newFakeTable(), "particles", zap.NewNop())
	id := fixtures.ID(4)
	v2, err := entities.NewPersonalityMetrics(id, fixtures.Traits(0.6), 2, fixtures.FixedNow)
	require.NoError(t, err)

	require.NoError(t, store.SaveMetrics(ctx, fixtures.Metrics(id, fixtures.Traits(0.3))))
	require.NoError(t, store.SaveMetrics(ctx, v2))
	dup := store.SaveMetrics(ctx, v2)

	latest, err := store.GetLatestMetrics(ctx, id)
	require.NoError(t, err)
	assert.Error(t, dup)
	assert.Equal(t, 2, latest.Version())
	assert.Equal(t, fixtures.Traits(0.6), latest.Traits())

	none, err := store.GetLatestMetrics(ctx, fixtures.ID(5))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUniverseStateRepository_TickWrittenOnce(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := NewUniverseStateRepository(newFakeTable(), "particles", zap.NewNop())
	first := aggregates.GenesisState("default", fixtures.FixedNow).
		Next(aggregates.TickSummary{ActiveCount: 2, AverageEnergy: 4}, fixtures.FixedNow)
	second := first.Next(aggregates.TickSummary{ActiveCount: 1, AverageEnergy: 9}, fixtures.FixedNow.Add(time.Minute))

	// Act
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	dup := repo.Save(ctx, first)
	latest, err := repo.GetLatest(ctx, "default")

	// Assert
	assert.Error(t, dup)
	assert.True(t, isConditionFailed(dup))
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.TickNumber())
	assert.Equal(t, 9.0, latest.AverageEnergy())
}

func TestDistributedLock(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable()
	now := fixtures.FixedNow
	first := NewDistributedLock(table, "particles", time.Minute, zap.NewNop())
	second := NewDistributedLock(table, "particles", time.Minute, zap.NewNop())
	first.clock = func() time.Time { return now }
	second.clock = func() time.Time { return now }

	t.Run("contention is a concurrent tick", func(t *testing.T) {
		release, err := first.Acquire(ctx, "default")
		require.NoError(t, err)

		_, err = second.Acquire(ctx, "default")
		assert.True(t, pkgerrors.IsConcurrentTick(err))

		require.NoError(t, release(ctx))
		again, err := second.Acquire(ctx, "default")
		require.NoError(t, err)
		require.NoError(t, again(ctx))
	})

	t.Run("expired lock is taken over", func(t *testing.T) {
		stale, err := first.Acquire(ctx, "default")
		require.NoError(t, err)

		second.clock = func() time.Time { return now.Add(2 * time.Minute) }
		fresh, err := second.Acquire(ctx, "default")
		require.NoError(t, err)

		// the stale holder's release must not remove the new lock
		require.NoError(t, stale(ctx))
		_, err = first.Acquire(ctx, "default")
		assert.True(t, pkgerrors.IsConcurrentTick(err))
		require.NoError(t, fresh(ctx))
	})
}
