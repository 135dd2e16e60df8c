package indexer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/session"
)

const instrumentationName = "github.com/shareandimprove/archivist/internal/indexer"

// metrics instruments file outcomes. Without an installed meter provider
// the global no-op implementation is used.
type metrics struct {
	files    metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *metrics {
	m := &metrics{}

	var err error
	m.files, err = meter.Int64Counter(
		"archivist.files.processed",
		metric.WithDescription("Files processed by outcome (success, fail, skip) and type tag"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		logger.Warn("failed to create files counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"archivist.analysis.duration",
		metric.WithDescription("Time spent analysing a single file, including AI calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	return m
}

func (m *metrics) record(ctx context.Context, outcome session.Outcome, typeTag string, d time.Duration) {
	if typeTag == "" {
		typeTag = session.UnknownType
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.String("type", typeTag),
	)
	if m.files != nil {
		m.files.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}
