package tracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"attestia/internal/aggregator/tracer"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, "test.span",
		tracer.String("key", "value"),
		tracer.Bool("flag", true),
	)

	// Context should be returned unchanged
	assert.Equal(t, ctx, newCtx)
	// Span should not be nil
	require.NotNil(t, span)

	// Span methods should not panic
	span.SetAttributes(tracer.String("another", "attr"))
	span.AddEvent("test.event", tracer.Int64("count", 42))
	span.End(nil)
}

func TestNoopTracer_SpanEndWithError(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	_, span := tr.Start(ctx, "test.span")
	require.NotNil(t, span)

	// Should not panic when ending with error
	span.End(errors.New("test error"))
}

func TestOTelTracer_Start(t *testing.T) {
	// Without a registered SDK the global provider is a no-op, which makes
	// the adapter safe to exercise end to end.
	tr := tracer.NewOTel()

	ctx, span := tr.Start(context.Background(), tracer.SpanFetchForVC,
		tracer.String(tracer.AttrDataType, "identity_verification"),
		tracer.Bool(tracer.AttrCritical, true),
		tracer.Int64(tracer.AttrFailover, 1),
		tracer.Float64("reliability", 0.95),
	)
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))
	span.AddEvent("failover", tracer.String(tracer.AttrProviderID, "backup-1"))
	span.End(nil)
}

func TestOTelTracer_SpanEndWithError(t *testing.T) {
	tr := tracer.NewOTel()

	_, span := tr.Start(context.Background(), tracer.SpanProviderCall)
	require.NotNil(t, span)
	span.End(errors.New("provider unreachable"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	injected := otel.Tracer("attestia/test")
	tr := tracer.NewOTel(tracer.WithOTelTracer(injected))

	_, span := tr.Start(context.Background(), tracer.SpanBatchFetch)
	require.NotNil(t, span)
	span.End(nil)
}

func TestAttributeConstructors(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		attr := tracer.String("key", "value")
		assert.Equal(t, "key", attr.Key)
		assert.Equal(t, "value", attr.Value)
	})

	t.Run("Bool", func(t *testing.T) {
		attr := tracer.Bool("flag", true)
		assert.Equal(t, "flag", attr.Key)
		assert.Equal(t, true, attr.Value)
	})

	t.Run("Int64", func(t *testing.T) {
		attr := tracer.Int64("count", 42)
		assert.Equal(t, "count", attr.Key)
		assert.Equal(t, int64(42), attr.Value)
	})

	t.Run("Float64", func(t *testing.T) {
		attr := tracer.Float64("ratio", 3.14)
		assert.Equal(t, "ratio", attr.Key)
		assert.Equal(t, 3.14, attr.Value)
	})

	t.Run("Duration", func(t *testing.T) {
		attr := tracer.Duration("latency", 150*1e6) // 150ms in nanoseconds
		assert.Equal(t, "latency", attr.Key)
		assert.Equal(t, int64(150), attr.Value)
	})
}

func TestSpanConstants(t *testing.T) {
	assert.Equal(t, "aggregator.fetch_for_vc", tracer.SpanFetchForVC)
	assert.Equal(t, "aggregator.provider.call", tracer.SpanProviderCall)
	assert.Equal(t, "aggregator.batch_fetch", tracer.SpanBatchFetch)
}

func TestAttributeConstants(t *testing.T) {
	assert.Equal(t, "data_type", tracer.AttrDataType)
	assert.Equal(t, "provider_id", tracer.AttrProviderID)
	assert.Equal(t, "cache.hit", tracer.AttrCacheHit)
	assert.Equal(t, "critical_type", tracer.AttrCritical)
	assert.Equal(t, "failover_attempt", tracer.AttrFailover)
}
