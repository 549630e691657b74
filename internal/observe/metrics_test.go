package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

func TestNewMetricsCreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "get_weather", true, false, 150*time.Millisecond)
	m.RecordToolCall(ctx, "memory_recall", false, true, 80*time.Millisecond)

	rm := collect(t, reader)

	calls := findMetric(rm, "aurelay.tool.calls")
	if calls == nil {
		t.Fatal("aurelay.tool.calls not found")
	}
	sum, ok := calls.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("aurelay.tool.calls: unexpected data type %T", calls.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("tool calls total: want 2, got %d", total)
	}

	if findMetric(rm, "aurelay.tool.duration") == nil {
		t.Error("aurelay.tool.duration not found")
	}
}

func TestRecordTokensSkipsZero(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTokens(ctx, "input", "text", 0)
	m.RecordTokens(ctx, "input", "audio", 250)
	m.RecordTokens(ctx, "output", "audio", 900)

	rm := collect(t, reader)
	tokens := findMetric(rm, "aurelay.tokens")
	if tokens == nil {
		t.Fatal("aurelay.tokens not found")
	}
	sum, ok := tokens.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("aurelay.tokens: unexpected data type %T", tokens.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("data points: want 2 (zero delta skipped), got %d", len(sum.DataPoints))
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1150 {
		t.Errorf("tokens total: want 1150, got %d", total)
	}
}

func TestRecordSessionEnd(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.RecordSessionEnd(ctx, 90*time.Second, 0.042)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)

	dur := findMetric(rm, "aurelay.session.duration")
	if dur == nil {
		t.Fatal("aurelay.session.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("session duration: unexpected data type %T", dur.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("session duration: want one observation, got %+v", hist.DataPoints)
	}

	cost := findMetric(rm, "aurelay.session.cost")
	if cost == nil {
		t.Fatal("aurelay.session.cost not found")
	}
	costSum, ok := cost.Data.(metricdata.Sum[float64])
	if !ok {
		t.Fatalf("session cost: unexpected data type %T", cost.Data)
	}
	if len(costSum.DataPoints) != 1 || costSum.DataPoints[0].Value != 0.042 {
		t.Errorf("session cost: want 0.042, got %+v", costSum.DataPoints)
	}

	active := findMetric(rm, "aurelay.sessions.active")
	if active == nil {
		t.Fatal("aurelay.sessions.active not found")
	}
	activeSum, ok := active.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("active sessions: unexpected data type %T", active.Data)
	}
	if len(activeSum.DataPoints) != 1 || activeSum.DataPoints[0].Value != 0 {
		t.Errorf("active sessions: want 0 after start+end, got %+v", activeSum.DataPoints)
	}
}

func TestRecordPersistenceError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPersistenceError(ctx, "append_transcript")

	rm := collect(t, reader)
	errs := findMetric(rm, "aurelay.persistence.errors")
	if errs == nil {
		t.Fatal("aurelay.persistence.errors not found")
	}
	sum, ok := errs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("persistence errors: unexpected data type %T", errs.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("persistence errors: want 1, got %+v", sum.DataPoints)
	}
}
