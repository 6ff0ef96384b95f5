package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes entitlement and billing instruments.
type Metrics struct {
	decisions      metric.Int64Counter
	usageRecorded  metric.Int64Counter
	usageFailures  metric.Int64Counter
	billingEvents  metric.Int64Counter
	configErrors   metric.Int64Counter
	reconciliation metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "story-entitlements"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
	}{
		{&m.decisions, "entitlement_decisions_total"},
		{&m.usageRecorded, "entitlement_usage_recorded_total"},
		{&m.usageFailures, "entitlement_usage_record_failures_total"},
		{&m.billingEvents, "billing_events_total"},
		{&m.configErrors, "billing_configuration_errors_total"},
		{&m.reconciliation, "billing_reconciliations_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by the noop provider, for tests.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordDecision counts an allow/deny decision for a bucket.
func (m *Metrics) RecordDecision(ctx context.Context, bucket string, allowed bool, reason string) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	attrs := FilterAttributes(
		attribute.String("bucket", strings.TrimSpace(bucket)),
		attribute.String("outcome", outcome),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUsage counts a committed ledger increment.
func (m *Metrics) RecordUsage(ctx context.Context, bucket string) {
	if m == nil {
		return
	}
	m.usageRecorded.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("bucket", bucket))...))
}

// RecordUsageFailure counts a ledger write that failed after delivery.
func (m *Metrics) RecordUsageFailure(ctx context.Context, bucket string) {
	if m == nil {
		return
	}
	m.usageFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("bucket", bucket))...))
}

// RecordBillingEvent counts an inbound billing event by type and outcome.
func (m *Metrics) RecordBillingEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.billingEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConfigurationError counts unmapped billing prices.
func (m *Metrics) RecordConfigurationError(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.configErrors.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("source", source))...))
}

// RecordReconciliation counts reconcile runs and whether local state changed.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reconciliation.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"bucket":     {},
	"outcome":    {},
	"reason":     {},
	"event_type": {},
	"source":     {},
	"tier_id":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// User identifiers never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
