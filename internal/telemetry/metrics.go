package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/heraerp/hera-engine"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Entity metrics
	EntitiesUpsertedTotal  metric.Int64Counter
	EntitiesReadTotal      metric.Int64Counter
	DynamicFieldsSetTotal  metric.Int64Counter

	// Relationship metrics
	RelationshipsUpsertedTotal    metric.Int64Counter
	RelationshipsDeactivatedTotal metric.Int64Counter

	// Transaction metrics
	TransactionsEmittedTotal    metric.Int64Counter
	TransactionsSuppressedTotal metric.Int64Counter
	TransactionsReversedTotal   metric.Int64Counter
	LedgerImbalancesTotal       metric.Int64Counter
	EmitDuration                metric.Float64Histogram

	// Error metrics
	CrossTenantViolationsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.EntitiesUpsertedTotal, _ = meter.Int64Counter(
		"hera.entities.upserted.total",
		metric.WithDescription("Total number of entity upserts"),
		metric.WithUnit("{entity}"),
	)

	m.EntitiesReadTotal, _ = meter.Int64Counter(
		"hera.entities.read.total",
		metric.WithDescription("Total number of entity read operations"),
		metric.WithUnit("{call}"),
	)

	m.DynamicFieldsSetTotal, _ = meter.Int64Counter(
		"hera.dynamic_fields.set.total",
		metric.WithDescription("Total number of dynamic field writes"),
		metric.WithUnit("{field}"),
	)

	m.RelationshipsUpsertedTotal, _ = meter.Int64Counter(
		"hera.relationships.upserted.total",
		metric.WithDescription("Total number of relationship upserts"),
		metric.WithUnit("{relationship}"),
	)

	m.RelationshipsDeactivatedTotal, _ = meter.Int64Counter(
		"hera.relationships.deactivated.total",
		metric.WithDescription("Total number of relationship deactivations"),
		metric.WithUnit("{relationship}"),
	)

	m.TransactionsEmittedTotal, _ = meter.Int64Counter(
		"hera.transactions.emitted.total",
		metric.WithDescription("Total number of transactions emitted"),
		metric.WithUnit("{transaction}"),
	)

	m.TransactionsSuppressedTotal, _ = meter.Int64Counter(
		"hera.transactions.suppressed.total",
		metric.WithDescription("Total number of duplicate emits suppressed via idempotency key"),
		metric.WithUnit("{transaction}"),
	)

	m.TransactionsReversedTotal, _ = meter.Int64Counter(
		"hera.transactions.reversed.total",
		metric.WithDescription("Total number of transaction reversals"),
		metric.WithUnit("{transaction}"),
	)

	m.LedgerImbalancesTotal, _ = meter.Int64Counter(
		"hera.ledger.imbalances.total",
		metric.WithDescription("Total number of emits rejected for unbalanced ledger lines"),
		metric.WithUnit("{error}"),
	)

	m.EmitDuration, _ = meter.Float64Histogram(
		"hera.transactions.emit.duration",
		metric.WithDescription("Duration of transaction emit operations"),
		metric.WithUnit("ms"),
	)

	m.CrossTenantViolationsTotal, _ = meter.Int64Counter(
		"hera.cross_tenant.violations.total",
		metric.WithDescription("Total number of operations rejected for crossing the tenant boundary"),
		metric.WithUnit("{error}"),
	)

	return m
}
