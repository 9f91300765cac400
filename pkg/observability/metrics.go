package observability

import (
	"context"
	"time"

	"particle-universe/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// PutMetricDataAPI is the part of the CloudWatch client Metrics uses
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// putTimeout bounds a single PutMetricData call so reporting never holds up a tick
const putTimeout = 2 * time.Second

// Metrics handles application metrics and monitoring in CloudWatch
type Metrics struct {
	namespace string
	client    PutMetricDataAPI
	logger    *zap.Logger
	now       func() time.Time
}

// NewMetrics creates a new metrics instance. A nil client turns every call into a no-op.
func NewMetrics(namespace string, client PutMetricDataAPI, logger *zap.Logger) *Metrics {
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordTick reports the figures of a committed tick
func (m *Metrics) RecordTick(ctx context.Context, t ports.TickMetrics) {
	universe := dimension("UniverseID", t.UniverseID)
	m.put(ctx,
		m.datum("TickDuration", float64(t.Duration.Milliseconds()), types.StandardUnitMilliseconds, universe),
		m.datum("ParticlesProcessed", float64(t.Processed), types.StandardUnitCount, universe),
		m.datum("ParticlesActive", float64(t.Active), types.StandardUnitCount, universe),
		m.datum("ParticlesExpired", float64(t.Expired), types.StandardUnitCount, universe),
		m.datum("Interactions", float64(t.Interactions), types.StandardUnitCount, universe),
	)
}

// RecordTickRejected counts ticks refused because another was in flight
func (m *Metrics) RecordTickRejected(ctx context.Context, universeID string) {
	m.put(ctx, m.datum("TickRejected", 1, types.StandardUnitCount, dimension("UniverseID", universeID)))
}

// RecordTickFailed counts aborted ticks by the phase that failed
func (m *Metrics) RecordTickFailed(ctx context.Context, universeID string, reason string) {
	m.put(ctx, m.datum("TickFailed", 1, types.StandardUnitCount,
		dimension("UniverseID", universeID),
		dimension("Phase", reason),
	))
}

// RecordCommandExecution records metrics for command execution
func (m *Metrics) RecordCommandExecution(ctx context.Context, commandName string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	dims := []types.Dimension{dimension("CommandName", commandName), dimension("Status", status)}
	m.put(ctx,
		m.datum("CommandExecution", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dims...),
		m.datum("CommandCount", 1, types.StandardUnitCount, dims...),
	)
}

func (m *Metrics) datum(name string, value float64, unit types.StandardUnit, dims ...types.Dimension) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(m.now()),
	}
}

func dimension(name, value string) types.Dimension {
	return types.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (m *Metrics) put(ctx context.Context, data ...types.MetricDatum) {
	if m.client == nil {
		return
	}

	// Reporting outlives a cancelled request but not the timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), putTimeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("Failed to send metrics",
			zap.String("namespace", m.namespace),
			zap.Error(err),
		)
	}
}

// Recorders fans tick metrics out to several recorders
type Recorders []ports.MetricsRecorder

// RecordTick implements ports.MetricsRecorder
func (r Recorders) RecordTick(ctx context.Context, t ports.TickMetrics) {
	for _, rec := range r {
		rec.RecordTick(ctx, t)
	}
}

// RecordTickRejected implements ports.MetricsRecorder
func (r Recorders) RecordTickRejected(ctx context.Context, universeID string) {
	for _, rec := range r {
		rec.RecordTickRejected(ctx, universeID)
	}
}

// RecordTickFailed implements ports.MetricsRecorder
func (r Recorders) RecordTickFailed(ctx context.Context, universeID string, reason string) {
	for _, rec := range r {
		rec.RecordTickFailed(ctx, universeID, reason)
	}
}
