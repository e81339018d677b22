// Package observe holds Hearken's telemetry: OpenTelemetry metrics and
// traces, context-scoped slog loggers and the HTTP middleware for the ops
// server.
//
// Instruments are created from whatever [metric.MeterProvider] is passed to
// [NewMetrics]. Production code uses [DefaultMetrics], which binds to the
// global provider that [InitProvider] wires to the Prometheus exporter.
// Tests pass an SDK provider backed by a manual reader.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/hearken"

// stageBuckets covers a fast embedding lookup up to a slow remote STT call.
var stageBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics is the set of instruments the listening pipeline records into.
type Metrics struct {
	// StageDuration is labelled with "stage".
	StageDuration metric.Float64Histogram
	// SegmentOutcomes is labelled with "outcome".
	SegmentOutcomes metric.Int64Counter
	// LearnerDecisions is labelled with "outcome".
	LearnerDecisions metric.Int64Counter
	// Commands is labelled with "source" and "status".
	Commands metric.Int64Counter
	// ProviderErrors is labelled with "kind" (stt, llm, embedding) and "op".
	ProviderErrors metric.Int64Counter
	ActiveSessions metric.Int64UpDownCounter
	// HTTPRequestDuration is labelled with "method" and "route".
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.StageDuration, "hearken.stage.duration", "Latency of one listening pipeline stage.", stageBuckets},
		{&met.HTTPRequestDuration, "hearken.http.request.duration", "Ops server request latency by route.", nil},
	}
	for _, h := range histograms {
		opts := []metric.Float64HistogramOption{metric.WithDescription(h.desc), metric.WithUnit("s")}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}
		inst, err := meter.Float64Histogram(h.name, opts...)
		if err != nil {
			return nil, fmt.Errorf("observe: %s: %w", h.name, err)
		}
		*h.dst = inst
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.SegmentOutcomes, "hearken.segment.outcomes", "Finished speech segments by outcome."},
		{&met.LearnerDecisions, "hearken.learner.decisions", "Profile learner decisions by outcome."},
		{&met.Commands, "hearken.commands", "Dispatched commands by source and status."},
		{&met.ProviderErrors, "hearken.provider.errors", "Failed backend calls by kind and operation."},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("observe: %s: %w", c.name, err)
		}
		*c.dst = inst
	}

	var err error
	met.ActiveSessions, err = meter.Int64UpDownCounter("hearken.active_sessions",
		metric.WithDescription("Live listening sessions."))
	if err != nil {
		return nil, fmt.Errorf("observe: hearken.active_sessions: %w", err)
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instruments bound to the global
// meter provider. It panics if they cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

func oneAttr(key, value string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(key, value))
}

// RecordStage records how long one pipeline stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), oneAttr("stage", stage))
}

// RecordOutcome counts one finished segment.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.SegmentOutcomes.Add(ctx, 1, oneAttr("outcome", outcome))
}

// RecordLearnerDecision counts one learner decision.
func (m *Metrics) RecordLearnerDecision(ctx context.Context, outcome string) {
	m.LearnerDecisions.Add(ctx, 1, oneAttr("outcome", outcome))
}

// RecordCommand counts one dispatched command.
func (m *Metrics) RecordCommand(ctx context.Context, source, status string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
}

// RecordProviderError counts one failed backend call.
func (m *Metrics) RecordProviderError(ctx context.Context, kind, op string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("op", op),
	))
}
