package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/session"
)

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), zap.NewNop())

	ctx := context.Background()
	m.record(ctx, session.Success, "pdf", 250*time.Millisecond)
	m.record(ctx, session.Fail, "", 10*time.Millisecond)
	m.record(ctx, session.Skip, "pdf", time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			switch md.Name {
			case "archivist.files.processed":
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				var total int64
				types := map[string]bool{}
				for _, dp := range sum.DataPoints {
					total += dp.Value
					v, _ := dp.Attributes.Value("type")
					types[v.AsString()] = true
				}
				assert.EqualValues(t, 3, total)
				assert.True(t, types[session.UnknownType], "empty type tag is reported as unknown")
			case "archivist.analysis.duration":
				hist, ok := md.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				var count uint64
				for _, dp := range hist.DataPoints {
					count += dp.Count
				}
				assert.EqualValues(t, 3, count)
			}
		}
	}
	assert.True(t, found["archivist.files.processed"], "files counter not found")
	assert.True(t, found["archivist.analysis.duration"], "duration histogram not found")
}
