package di

import (
	"particle-universe/application/commands/bus"
	"particle-universe/application/ports"
	querybus "particle-universe/application/queries/bus"
	"particle-universe/application/services"
	simconfig "particle-universe/domain/config"
	"particle-universe/infrastructure/config"
	"particle-universe/interfaces/http/rest"
	"particle-universe/pkg/observability"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Logger         *zap.Logger
	Tuning         *simconfig.Provider
	Stores         *Stores
	DynamoDB       *awsdynamodb.Client
	EventPublisher ports.EventPublisher
	TickProcessor  *services.TickProcessor
	CommandBus     *bus.CommandBus
	QueryBus       *querybus.QueryBus
	Collector      *observability.Collector
	Tracer         *observability.Tracer
	Router         *rest.Router
}
