package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	StreamIDKey    = "stream_id"
	RecordIDKey    = "record_id"
	RequestIDKey   = "request_id"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, ctxKey(MessageIDKey), messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ctxKey(ServiceNameKey), serviceName)
}

func WithStreamID(ctx context.Context, streamID string) context.Context {
	return context.WithValue(ctx, ctxKey(StreamIDKey), streamID)
}

func WithRecordID(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, ctxKey(RecordIDKey), recordID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey(RequestIDKey), requestID)
}

func value(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return value(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return value(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return value(ctx, ServiceNameKey)
}

func GetStreamID(ctx context.Context) string {
	return value(ctx, StreamIDKey)
}

func GetRecordID(ctx context.Context) string {
	return value(ctx, RecordIDKey)
}

func GetRequestID(ctx context.Context) string {
	return value(ctx, RequestIDKey)
}

// GetLogFields returns the key/value pairs set on ctx, in a fixed order.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 12)

	for _, key := range []string{TraceIDKey, MessageIDKey, RequestIDKey, ServiceNameKey, StreamIDKey, RecordIDKey} {
		if v := value(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
