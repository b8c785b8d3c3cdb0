package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 错误分类，便于在追踪后端过滤
type ErrorType string

const (
	ErrorTypeHTTP        ErrorType = "http"
	ErrorTypeDB          ErrorType = "db"
	ErrorTypeRedis       ErrorType = "redis"
	ErrorTypeObjectStore ErrorType = "object_store"
	ErrorTypeRabbitMQ    ErrorType = "rabbitmq"
	ErrorTypeLLM         ErrorType = "llm"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeTimeout     ErrorType = "timeout"
)

// RecordError 在 span 上记录错误并标记状态
func RecordError(span trace.Span, err error, errorType ErrorType, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// RecordHTTPError 记录 HTTP 错误，按状态码区分客户端和服务端错误
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	category := "unknown"
	switch {
	case statusCode >= 400 && statusCode < 500:
		category = "client_error"
	case statusCode >= 500:
		category = "server_error"
	}
	RecordError(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", category),
	)
}
