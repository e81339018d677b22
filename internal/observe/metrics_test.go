package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetrics_RegistersInstruments(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordStage(ctx, "verify", time.Millisecond)
	m.RecordOutcome(ctx, "ignored")
	m.RecordLearnerDecision(ctx, "rejected")
	m.RecordCommand(ctx, "wake_word", "ok")
	m.RecordProviderError(ctx, "stt", "transcribe")
	m.ActiveSessions.Add(ctx, 1)
	m.HTTPRequestDuration.Record(ctx, 0.01)

	rm := collect(t, reader)
	for _, name := range []string{
		"hearken.stage.duration",
		"hearken.segment.outcomes",
		"hearken.learner.decisions",
		"hearken.commands",
		"hearken.provider.errors",
		"hearken.active_sessions",
		"hearken.http.request.duration",
	} {
		if findMetric(rm, name) == nil {
			t.Errorf("instrument %s not exported", name)
		}
	}
}

func TestRecordStage_SeparatesStages(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordStage(ctx, "verify", 20*time.Millisecond)
	m.RecordStage(ctx, "verify", 30*time.Millisecond)
	m.RecordStage(ctx, "transcribe", 700*time.Millisecond)

	met := findMetric(collect(t, reader), "hearken.stage.duration")
	if met == nil {
		t.Fatal("stage histogram missing")
	}
	hist := met.Data.(metricdata.Histogram[float64])

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value("stage")
		counts[v.AsString()] = dp.Count
		if len(dp.Bounds) != len(stageBuckets) {
			t.Errorf("bounds = %v, want stage buckets", dp.Bounds)
		}
	}
	if counts["verify"] != 2 || counts["transcribe"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordOutcome(ctx, "command")
	m.RecordOutcome(ctx, "command")
	m.RecordOutcome(ctx, "speaker_other")
	m.RecordLearnerDecision(ctx, "admitted")
	m.RecordCommand(ctx, "intent", "error")
	m.RecordProviderError(ctx, "llm", "intent")
	m.RecordProviderError(ctx, "llm", "intent")
	m.RecordProviderError(ctx, "stt", "transcribe")
	rm := collect(t, reader)

	tests := []struct {
		metric string
		attrs  []attribute.KeyValue
		want   int64
	}{
		{"hearken.segment.outcomes", []attribute.KeyValue{attribute.String("outcome", "command")}, 2},
		{"hearken.segment.outcomes", []attribute.KeyValue{attribute.String("outcome", "speaker_other")}, 1},
		{"hearken.learner.decisions", []attribute.KeyValue{attribute.String("outcome", "admitted")}, 1},
		{"hearken.commands", []attribute.KeyValue{
			attribute.String("source", "intent"), attribute.String("status", "error"),
		}, 1},
		{"hearken.provider.errors", []attribute.KeyValue{
			attribute.String("kind", "llm"), attribute.String("op", "intent"),
		}, 2},
		{"hearken.provider.errors", []attribute.KeyValue{
			attribute.String("kind", "stt"), attribute.String("op", "transcribe"),
		}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.metric, func(t *testing.T) {
			if got := sumFor(t, rm, tc.metric, attribute.NewSet(tc.attrs...)); got != tc.want {
				t.Errorf("%v = %d, want %d", tc.attrs, got, tc.want)
			}
		})
	}
}

func TestActiveSessions_GoesDown(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	if got := sumFor(t, collect(t, reader), "hearken.active_sessions", attribute.NewSet()); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}

// ── helpers ──

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the series whose attribute set equals set.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, set attribute.Set) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want a sum", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&set) {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no series %v", name, set.ToSlice())
	return 0
}
