package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := New(mp, func() int { return 3 })
	require.NoError(t, err)

	ctx := context.Background()
	m.ConnectionOpened(ctx)
	m.ConnectionOpened(ctx)
	m.ConnectionClosed(ctx)
	m.Joined(ctx)
	m.Rejected(ctx, "FORBIDDEN")

	got := collect(t, reader)

	conns := got["plan_chat_connections"].(metricdata.Sum[int64])
	require.EqualValues(t, 1, conns.DataPoints[0].Value)

	joins := got["plan_chat_joins_total"].(metricdata.Sum[int64])
	require.EqualValues(t, 1, joins.DataPoints[0].Value)

	rooms := got["plan_chat_active_rooms"].(metricdata.Gauge[int64])
	require.EqualValues(t, 3, rooms.DataPoints[0].Value)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.ConnectionOpened(ctx)
	m.Joined(ctx)
	m.Delivered(ctx, 2)
	m.Published(ctx, "message", true)
}
