// Package middleware provides HTTP middleware components for request IDs,
// access logging, admin authorization and span annotation.
package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func requestSpan(c *gin.Context) (trace.Span, bool) {
	if c.Request == nil {
		return nil, false
	}
	span := trace.SpanFromContext(c.Request.Context())
	return span, span.IsRecording()
}

// RecordError marks the request span as failed with description as status.
func RecordError(c *gin.Context, err error, description string) {
	if span, ok := requestSpan(c); ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}

// AddSpanAttribute annotates the request span. Horizon lists become int
// slices; any other unknown type is rendered with %v.
func AddSpanAttribute(c *gin.Context, key string, value any) {
	if span, ok := requestSpan(c); ok {
		span.SetAttributes(spanAttribute(key, value))
	}
}

func spanAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []int:
		return attribute.IntSlice(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprint(value))
	}
}

// TraceRequestID copies the request ID onto the request span so traces and
// access logs can be joined. It must run after RequestID and the tracing middleware.
func TraceRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := GetRequestID(c); id != "" {
			AddSpanAttribute(c, "http.request_id", id)
		}
		c.Next()
	}
}
