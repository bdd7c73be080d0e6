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

// Metrics exposes domain-level instruments.
type Metrics struct {
	ordersSubmitted    metric.Int64Counter
	orderWriteFailures metric.Int64Counter
	statusTransitions  metric.Int64Counter
	paymentsRecorded   metric.Int64Counter
	paymentsRejected   metric.Int64Counter
	sessionsClosed     metric.Int64Counter
	settlementWarnings metric.Int64Counter
	realtimeEvents     metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
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

// New configures the domain metric instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tabledesk"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.ordersSubmitted, err = meter.Int64Counter("tabledesk_orders_submitted_total"); err != nil {
		return nil, err
	}
	if m.orderWriteFailures, err = meter.Int64Counter("tabledesk_order_write_failures_total"); err != nil {
		return nil, err
	}
	if m.statusTransitions, err = meter.Int64Counter("tabledesk_order_status_transitions_total"); err != nil {
		return nil, err
	}
	if m.paymentsRecorded, err = meter.Int64Counter("tabledesk_payments_recorded_total"); err != nil {
		return nil, err
	}
	if m.paymentsRejected, err = meter.Int64Counter("tabledesk_payments_rejected_total"); err != nil {
		return nil, err
	}
	if m.sessionsClosed, err = meter.Int64Counter("tabledesk_sessions_closed_total"); err != nil {
		return nil, err
	}
	if m.settlementWarnings, err = meter.Int64Counter("tabledesk_settlement_warnings_total"); err != nil {
		return nil, err
	}
	if m.realtimeEvents, err = meter.Int64Counter("tabledesk_realtime_events_total"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("tabledesk_rate_limit_denied_total"); err != nil {
		return nil, err
	}

	return m, nil
}

// NewNop returns instruments backed by a no-op provider.
func NewNop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordOrderSubmitted(ctx context.Context, restaurantID string, modifiersPersisted bool) {
	if m == nil {
		return
	}
	reason := "complete"
	if !modifiersPersisted {
		reason = "modifiers_missing"
	}
	m.ordersSubmitted.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("restaurant_id", restaurantID),
		attribute.String("reason", reason),
	)...))
}

func (m *Metrics) RecordOrderWriteFailure(ctx context.Context, restaurantID, stage string) {
	if m == nil {
		return
	}
	m.orderWriteFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("restaurant_id", restaurantID),
		attribute.String("stage", stage),
	)...))
}

func (m *Metrics) RecordStatusTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)...))
}

func (m *Metrics) RecordPayment(ctx context.Context, restaurantID, method string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("restaurant_id", restaurantID),
		attribute.String("method", method),
	)...))
}

func (m *Metrics) RecordPaymentRejected(ctx context.Context, restaurantID, reason string) {
	if m == nil {
		return
	}
	m.paymentsRejected.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("restaurant_id", restaurantID),
		attribute.String("reason", reason),
	)...))
}

func (m *Metrics) RecordSessionClosed(ctx context.Context, restaurantID string) {
	if m == nil {
		return
	}
	m.sessionsClosed.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("restaurant_id", restaurantID),
	)...))
}

func (m *Metrics) RecordSettlementWarning(ctx context.Context, restaurantID string) {
	if m == nil {
		return
	}
	m.settlementWarnings.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("restaurant_id", restaurantID),
	)...))
}

func (m *Metrics) RecordRealtimeEvent(ctx context.Context, entity, op string) {
	if m == nil {
		return
	}
	m.realtimeEvents.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("entity", entity),
		attribute.String("op", op),
	)...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"restaurant_id": {},
	"endpoint":      {},
	"status_code":   {},
	"method":        {},
	"from":          {},
	"to":            {},
	"stage":         {},
	"entity":        {},
	"op":            {},
	"reason":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
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
