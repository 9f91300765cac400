// Package mocks holds testify mocks of the application ports
package mocks

import (
	"context"
	"time"

	"particle-universe/application/ports"
	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/domain/events"

	"github.com/stretchr/testify/mock"
)

// MockParticleRepository mocks ports.ParticleRepository
type MockParticleRepository struct {
	mock.Mock
}

func (m *MockParticleRepository) Save(ctx context.Context, particle *entities.Particle) error {
	args := m.Called(ctx, particle)
	return args.Error(0)
}

func (m *MockParticleRepository) GetByID(ctx context.Context, id valueobjects.ParticleID) (*entities.Particle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Particle), args.Error(1)
}

func (m *MockParticleRepository) GetActiveParticles(ctx context.Context) ([]*entities.Particle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Particle), args.Error(1)
}

func (m *MockParticleRepository) GetParticleByUser(ctx context.Context, userID string) (*entities.Particle, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Particle), args.Error(1)
}

func (m *MockParticleRepository) UpdateParticlesBatch(ctx context.Context, particles []*entities.Particle) error {
	args := m.Called(ctx, particles)
	return args.Error(0)
}

// MockPersonalityStore mocks ports.PersonalityStore
type MockPersonalityStore struct {
	mock.Mock
}

func (m *MockPersonalityStore) GetLatestMetrics(ctx context.Context, particleID valueobjects.ParticleID) (*entities.PersonalityMetrics, error) {
	args := m.Called(ctx, particleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PersonalityMetrics), args.Error(1)
}

func (m *MockPersonalityStore) SaveMetrics(ctx context.Context, metrics *entities.PersonalityMetrics) error {
	args := m.Called(ctx, metrics)
	return args.Error(0)
}

// MockUniverseStateRepository mocks ports.UniverseStateRepository
type MockUniverseStateRepository struct {
	mock.Mock
}

func (m *MockUniverseStateRepository) GetLatest(ctx context.Context, universeID string) (*aggregates.UniverseState, error) {
	args := m.Called(ctx, universeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregates.UniverseState), args.Error(1)
}

func (m *MockUniverseStateRepository) Save(ctx context.Context, state *aggregates.UniverseState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// MockEventPublisher mocks ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

// MockTickLock mocks ports.TickLock
type MockTickLock struct {
	mock.Mock
}

func (m *MockTickLock) Acquire(ctx context.Context, universeID string) (ports.ReleaseFunc, error) {
	args := m.Called(ctx, universeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.ReleaseFunc), args.Error(1)
}

// MockMetricsRecorder mocks ports.MetricsRecorder
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordTick(ctx context.Context, metrics ports.TickMetrics) {
	m.Called(ctx, metrics)
}

func (m *MockMetricsRecorder) RecordTickRejected(ctx context.Context, universeID string) {
	m.Called(ctx, universeID)
}

func (m *MockMetricsRecorder) RecordTickFailed(ctx context.Context, universeID string, reason string) {
	m.Called(ctx, universeID, reason)
}

// MockCache mocks ports.Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (interface{}, bool) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Bool(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
