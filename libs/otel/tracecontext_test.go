package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	tp, ts := TraceContextStrings(ctx)
	if tp == "" {
		t.Fatal("expected traceparent")
	}

	restored := trace.SpanContextFromContext(ContextWithTraceContext(context.Background(), tp, ts))
	if restored.TraceID() != traceID || restored.SpanID() != spanID {
		t.Fatalf("unexpected span context %s/%s", restored.TraceID(), restored.SpanID())
	}
	if !restored.IsRemote() {
		t.Fatal("expected remote span context")
	}
}

func TestContextWithEmptyTraceparent(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", "x"); got != ctx {
		t.Fatal("expected context unchanged")
	}
}
