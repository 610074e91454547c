// Package observability holds the OpenTelemetry instruments of the gateway.
// A nil *Metrics is valid and records nothing.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "plan-chat"

type Metrics struct {
	connections metric.Int64UpDownCounter
	joins       metric.Int64Counter
	leaves      metric.Int64Counter
	delivered   metric.Int64Counter
	rejected    metric.Int64Counter
	dropped     metric.Int64Counter
	published   metric.Int64Counter
}

// New registers the instruments on the given provider; nil means the
// global one. activeRooms, when set, backs the plan_chat_active_rooms gauge.
func New(mp metric.MeterProvider, activeRooms func() int) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	if m.connections, err = meter.Int64UpDownCounter("plan_chat_connections",
		metric.WithDescription("Open websocket connections")); err != nil {
		return nil, err
	}
	if m.joins, err = meter.Int64Counter("plan_chat_joins_total",
		metric.WithDescription("Connections admitted into a plan room")); err != nil {
		return nil, err
	}
	if m.leaves, err = meter.Int64Counter("plan_chat_leaves_total",
		metric.WithDescription("Connections removed from a plan room")); err != nil {
		return nil, err
	}
	if m.delivered, err = meter.Int64Counter("plan_chat_messages_total",
		metric.WithDescription("Messages persisted and broadcast")); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("plan_chat_errors_total",
		metric.WithDescription("Error events sent to clients, by code")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("plan_chat_slow_consumers_total",
		metric.WithDescription("Connections dropped on send queue overflow")); err != nil {
		return nil, err
	}
	if m.published, err = meter.Int64Counter("plan_chat_events_published_total",
		metric.WithDescription("Events mirrored to NATS, by outcome")); err != nil {
		return nil, err
	}

	if activeRooms != nil {
		gauge, err := meter.Int64ObservableGauge("plan_chat_active_rooms",
			metric.WithDescription("Plan rooms with at least one connection"))
		if err != nil {
			return nil, err
		}
		if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, int64(activeRooms()))
			return nil
		}, gauge); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (m *Metrics) ConnectionOpened(ctx context.Context) {
	if m != nil {
		m.connections.Add(ctx, 1)
	}
}

func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m != nil {
		m.connections.Add(ctx, -1)
	}
}

func (m *Metrics) Joined(ctx context.Context) {
	if m != nil {
		m.joins.Add(ctx, 1)
	}
}

func (m *Metrics) Left(ctx context.Context) {
	if m != nil {
		m.leaves.Add(ctx, 1)
	}
}

func (m *Metrics) Delivered(ctx context.Context, recipients int) {
	if m != nil {
		m.delivered.Add(ctx, 1, metric.WithAttributes(attribute.Int("recipients", recipients)))
	}
}

func (m *Metrics) Rejected(ctx context.Context, code string) {
	if m != nil {
		m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	}
}

func (m *Metrics) SlowConsumer(ctx context.Context) {
	if m != nil {
		m.dropped.Add(ctx, 1)
	}
}

func (m *Metrics) Published(ctx context.Context, kind string, ok bool) {
	if m != nil {
		m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind), attribute.Bool("ok", ok)))
	}
}
