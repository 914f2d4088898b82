package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RequestIDHeader carries the correlation id across services.
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

var tracer = otel.Tracer("github.com/imrishuroy/heatshop-checkout/internal/logging")

// Middleware starts a server span, attaches a request-scoped logger to the
// request context and logs one line per request.
func Middleware(base *zap.Logger) gin.HandlerFunc {
	if base == nil {
		base = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("request.id", requestID),
			))
		defer span.End()

		logger := base.With(zap.String("request_id", requestID))
		if sc := span.SpanContext(); sc.HasTraceID() {
			logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
		}
		c.Request = c.Request.WithContext(WithLogger(ctx, logger))

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// RequestID returns the correlation id assigned by Middleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
