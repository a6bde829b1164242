package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"flashflow-studio/pkg/logger"
)

const (
	// RequestIDHeader 请求 ID 头
	RequestIDHeader = "X-Request-ID"
	// TraceIDHeader 响应中回写的 trace id
	TraceIDHeader = "X-Trace-ID"
)

// bindField 同时写入 gin context 与日志 context
func bindField(c *gin.Context, key logger.ContextKey, value string) {
	c.Set(string(key), value)
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), key, value))
}

// RequestID 透传或生成请求 ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		bindField(c, logger.RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// Trace otelgin 追踪
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// TraceContext 把当前 span 的 trace_id/span_id 带进日志，须放在 Trace 之后
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
		if sc.IsValid() {
			bindField(c, logger.TraceIDKey, sc.TraceID().String())
			bindField(c, logger.SpanIDKey, sc.SpanID().String())
			c.Header(TraceIDHeader, sc.TraceID().String())
		}
		c.Next()
	}
}
