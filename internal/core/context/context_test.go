package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTraceContext_FillsMissingIDs(t *testing.T) {
	tc := NewTraceContext("", "")
	assert.NotEmpty(t, tc.RequestID)
	assert.Equal(t, tc.RequestID, tc.TraceID)

	tc = NewTraceContext("req-1", "trace-1")
	assert.Equal(t, "req-1", tc.RequestID)
	assert.Equal(t, "trace-1", tc.TraceID)
}

func TestSpanTraceID(t *testing.T) {
	assert.Equal(t, "", SpanTraceID(context.Background()))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, Remote: true})

	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", SpanTraceID(ctx))
}

func TestGetRequestID(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
	ctx := WithTrace(context.Background(), NewTraceContext("req-9", ""))
	assert.Equal(t, "req-9", GetRequestID(ctx))
}

func TestGetOperatorName(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetOperatorName(ctx))

	ctx = WithOperator(ctx, &Operator{Name: "  Marta  "})
	assert.Equal(t, "Marta", GetOperatorName(ctx))
}
