package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })
	return exp
}

func TestStartSpanAndCorrelationID(t *testing.T) {
	withTestTracer(t)

	ctx, span := StartSpan(context.Background(), "session.connect")
	defer span.End()

	cid := CorrelationID(ctx)
	if cid == "" {
		t.Fatal("CorrelationID inside a span: want non-empty")
	}
	if len(cid) != 32 {
		t.Errorf("CorrelationID length = %d, want 32", len(cid))
	}
}

func TestCorrelationIDWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span: want empty, got %q", got)
	}
}

func TestLoggerEnrichment(t *testing.T) {
	withTestTracer(t)

	// Without a span the default logger comes back unmodified.
	if l := Logger(context.Background()); l == nil {
		t.Fatal("Logger returned nil")
	}

	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	if l := Logger(ctx); l == nil {
		t.Fatal("Logger with span returned nil")
	}
}
