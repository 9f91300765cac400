package di

import (
	"context"
	"fmt"
	"time"

	"particle-universe/application/commands"
	"particle-universe/application/commands/bus"
	commandhandlers "particle-universe/application/commands/handlers"
	"particle-universe/application/ports"
	"particle-universe/application/queries"
	querybus "particle-universe/application/queries/bus"
	queryhandlers "particle-universe/application/queries/handlers"
	"particle-universe/application/services"
	simconfig "particle-universe/domain/config"
	"particle-universe/infrastructure/config"
	"particle-universe/infrastructure/messaging/eventbridge"
	"particle-universe/infrastructure/persistence/cache"
	"particle-universe/infrastructure/persistence/dynamodb"
	"particle-universe/infrastructure/persistence/memory"
	"particle-universe/infrastructure/persistence/sqlite"
	"particle-universe/interfaces/http/rest"
	"particle-universe/interfaces/http/rest/middleware"
	"particle-universe/pkg/auth"
	"particle-universe/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// serviceName names the service in traces and metric namespaces
const serviceName = "ParticleUniverse"

// Stores groups the repositories of the configured storage driver
type Stores struct {
	Particles     ports.ParticleRepository
	Personalities ports.PersonalityStore
	States        ports.UniverseStateRepository
	Lock          ports.TickLock
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zapCfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideSimulationConfig loads the tuning for the environment, the
// optional YAML file and SIM_* overrides
func ProvideSimulationConfig(cfg *config.Config) (*simconfig.Provider, error) {
	tuning, err := simconfig.Load(cfg.Environment, cfg.SimulationConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load simulation config: %w", err)
	}
	return simconfig.NewProvider(tuning), nil
}

// ProvideStores opens the repositories of the configured driver. The
// cleanup closes the sqlite database when one was opened.
func ProvideStores(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (*Stores, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDynamoDB:
		return &Stores{
			Particles:     dynamodb.NewParticleRepository(client, cfg.TableName, logger),
			Personalities: dynamodb.NewPersonalityStore(client, cfg.TableName, logger),
			States:        dynamodb.NewUniverseStateRepository(client, cfg.TableName, logger),
			Lock:          dynamodb.NewDistributedLock(client, cfg.TableName, cfg.LockTTL, logger),
		}, func() {}, nil

	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close sqlite store", zap.Error(err))
			}
		}
		return &Stores{
			Particles:     store.Particles(),
			Personalities: store.Personalities(),
			States:        store.UniverseStates(),
			Lock:          memory.NewTickLock(),
		}, cleanup, nil

	case config.StoreMemory:
		return NewMemoryStores(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewMemoryStores creates process-local repositories
func NewMemoryStores() *Stores {
	return &Stores{
		Particles:     memory.NewParticleRepository(),
		Personalities: memory.NewPersonalityStore(),
		States:        memory.NewUniverseStateRepository(),
		Lock:          memory.NewTickLock(),
	}
}

// ProvideCache creates the process-local TTL cache
func ProvideCache() (ports.Cache, func()) {
	c := cache.NewInMemoryCache(time.Minute)
	return c, c.Close
}

// ProvidePersonalityReader puts the TTL cache in front of the personality
// store. Metrics change rarely and every tick reads them for each pair.
func ProvidePersonalityReader(stores *Stores, c ports.Cache, cfg *config.Config, logger *zap.Logger) ports.PersonalityReader {
	if cfg.CacheTTL <= 0 {
		return stores.Personalities
	}
	return cache.NewCachingPersonalityStore(stores.Personalities, c, cfg.CacheTTL, logger)
}

// ProvideEventPublisher creates the event sink. A failing bus trips the
// breaker and events are dropped and logged until it recovers.
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EnableEventPublishing || cfg.EventBusName == "" {
		return eventbridge.NewNoopPublisher(logger)
	}
	publisher := eventbridge.NewPublisher(client, cfg.EventBusName, logger)
	return eventbridge.NewBreakingPublisher(publisher, eventbridge.DefaultBreakerConfig(), logger)
}

// ProvideMetrics creates the CloudWatch recorder. With metrics disabled it
// records nothing.
func ProvideMetrics(cfg *config.Config, client *awscloudwatch.Client, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("%s/%s", serviceName, cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, client, logger)
}

// ProvideCollector creates the Prometheus collector behind /metrics
func ProvideCollector() *observability.Collector {
	return observability.NewCollector("particle_universe")
}

// ProvideMetricsRecorder fans tick metrics out to CloudWatch and Prometheus
func ProvideMetricsRecorder(metrics *observability.Metrics, collector *observability.Collector) ports.MetricsRecorder {
	return observability.Recorders{metrics, collector}
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(serviceName, cfg.EnableTracing)
}

// ProvideTickProcessor creates the tick processor
func ProvideTickProcessor(
	stores *Stores,
	personalities ports.PersonalityReader,
	publisher ports.EventPublisher,
	recorder ports.MetricsRecorder,
	tuning *simconfig.Provider,
	snapshots *services.SnapshotHolder,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *services.TickProcessor {
	processor := services.NewTickProcessor(
		stores.Particles,
		personalities,
		stores.States,
		publisher,
		stores.Lock,
		recorder,
		tuning,
		snapshots,
		logger,
	)
	if tracer != nil {
		processor.WithTracer(tracer)
	}
	return processor
}

// ProvideUniverseReader creates the read-only universe inspector
func ProvideUniverseReader(
	stores *Stores,
	personalities ports.PersonalityReader,
	tuning *simconfig.Provider,
	snapshots *services.SnapshotHolder,
	logger *zap.Logger,
) *services.UniverseReader {
	return services.NewUniverseReader(stores.Particles, personalities, stores.States, tuning, snapshots, logger)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	stores *Stores,
	publisher ports.EventPublisher,
	tuning *simconfig.Provider,
	snapshots *services.SnapshotHolder,
	processor *services.TickProcessor,
	tracer *observability.Tracer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(logger),
		bus.MetricsMiddleware(metrics),
	)

	spawn := commandhandlers.NewSpawnParticleHandler(stores.Particles, stores.Personalities, publisher, tuning, logger)
	if err := commandBus.Register(commands.SpawnParticleCommand{}, bus.HandlerFor(spawn.Handle)); err != nil {
		return nil, err
	}

	update := commandhandlers.NewUpdateParticleStateHandler(stores.Particles, publisher, snapshots, logger)
	if err := commandBus.Register(commands.UpdateParticleStateCommand{}, bus.HandlerFor(update.Handle)); err != nil {
		return nil, err
	}

	var tickTracer commandhandlers.Tracer
	if tracer != nil {
		tickTracer = tracer
	}
	trigger := commandhandlers.NewTriggerTickHandler(processor, tickTracer, logger)
	if err := commandBus.Register(commands.TriggerTickCommand{}, bus.HandlerFor(trigger.Handle)); err != nil {
		return nil, err
	}

	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers. Only the
// compatibility score is cached: it depends on personality metrics alone,
// while every other read follows the ticks.
func ProvideQueryBus(
	stores *Stores,
	reader *services.UniverseReader,
	collector *observability.Collector,
	c ports.Cache,
	cfg *config.Config,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()
	measured := querybus.NewMetricsMiddleware(collector)
	h := queryhandlers.NewParticleQueryHandler(reader, logger)

	compatibility := measured.Wrap(querybus.HandlerFor(h.Compatibility))
	if cfg.CacheTTL > 0 {
		compatibility = querybus.NewCachingMiddleware(c, cfg.CacheTTL).Wrap(compatibility)
	}

	registrations := []struct {
		query   querybus.Query
		handler querybus.QueryHandler
	}{
		{queries.ListActiveParticlesQuery{}, measured.Wrap(querybus.HandlerFor(h.ListActive))},
		{queries.GetParticleByUserQuery{}, measured.Wrap(querybus.HandlerFor(h.GetByUser))},
		{queries.GetParticleQuery{}, measured.Wrap(querybus.HandlerFor(h.Get))},
		{queries.GetUniverseStateQuery{}, measured.Wrap(querybus.HandlerFor(h.UniverseState))},
		{queries.GetNeighborsQuery{}, measured.Wrap(querybus.HandlerFor(h.Neighbors))},
		{queries.EvaluateInteractionQuery{}, measured.Wrap(querybus.HandlerFor(h.EvaluateInteraction))},
		{queries.GetCompatibilityQuery{}, compatibility},
	}
	for _, r := range registrations {
		if err := queryBus.Register(r.query, r.handler); err != nil {
			return nil, err
		}
	}

	return queryBus, nil
}

// ProvideJWTValidator creates the bearer token validator
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
	})
}

// ProvideRateLimiter creates the per-user request limiter. Lambda instances
// share nothing, so the dynamodb deployment counts in the table; other
// drivers run as one process and count in memory.
func ProvideRateLimiter(cfg *config.Config, client *awsdynamodb.Client) auth.RateLimiter {
	if !cfg.EnableRateLimit || cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	if cfg.StoreDriver == config.StoreDynamoDB {
		return auth.NewDistributedRateLimiter(client, cfg.TableName, cfg.RateLimitPerMinute, time.Minute)
	}
	return auth.NewSlidingWindowLimiter(cfg.RateLimitPerMinute, time.Minute)
}

// ProvideAuthenticator creates the authentication middleware
func ProvideAuthenticator(cfg *config.Config, validator *auth.JWTValidator, limiter auth.RateLimiter, logger *zap.Logger) *middleware.Authenticator {
	return middleware.NewAuthenticator(validator, limiter, cfg.TrustGatewayAuth, logger)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	authn *middleware.Authenticator,
	collector *observability.Collector,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(commandBus, queryBus, authn, collector, rest.RouterConfig{
		EnableCORS: cfg.EnableCORS,
		Debug:      cfg.IsDevelopment(),
	}, logger)
}
