package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"

	appctx "stockflow/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
	HeaderOperator  = "X-Operator"
)

var traceparent = propagation.TraceContext{}

// Trace middleware adds request tracing context.
// The trace id comes from X-Trace-ID, then a W3C traceparent header, then
// the request id. Extracting traceparent also parents the ERP call spans.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := traceparent.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = appctx.SpanTraceID(ctx)
		}
		trace := appctx.NewTraceContext(c.GetHeader(HeaderRequestID), traceID)

		ctx = appctx.WithTrace(ctx, trace)
		c.Request = c.Request.WithContext(ctx)

		c.Set("trace_id", trace.TraceID)
		c.Set("request_id", trace.RequestID)

		c.Header(HeaderRequestID, trace.RequestID)
		c.Header(HeaderTraceID, trace.TraceID)

		c.Next()
	}
}

// Operator puts the caller-supplied operator name into the request context.
// The name is free text; nothing is authenticated.
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if name := c.GetHeader(HeaderOperator); name != "" {
			ctx := appctx.WithOperator(c.Request.Context(), &appctx.Operator{Name: name})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
