//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"particle-universe/application/services"
	"particle-universe/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideSimulationConfig,
	ProvideStores,
	ProvideCache,
	ProvidePersonalityReader,
	ProvideEventPublisher,
	ProvideMetrics,
	ProvideCollector,
	ProvideMetricsRecorder,
	ProvideTracer,
	services.NewSnapshotHolder,
	ProvideTickProcessor,
	ProvideUniverseReader,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideJWTValidator,
	ProvideRateLimiter,
	ProvideAuthenticator,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
