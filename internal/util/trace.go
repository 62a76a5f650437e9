package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// contextKey 是一个私有类型，用于避免 context key 的冲突
type contextKey string

const (
	traceIDKey contextKey = "traceID"
	driverKey  contextKey = "driver"
)

// NewTraceID 为每次 tick 生成一个随机的 Trace ID
// 同一次 tick 发出的所有 WES 调用共用该 ID
func NewTraceID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "failed-to-generate-trace-id"
	}
	return hex.EncodeToString(bytes)
}

// ContextWithTraceID 将 Trace ID 注入到 Context 中
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext 从 Context 中提取 Trace ID
func TraceIDFromContext(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok
}

// ContextWithDriver 记录当前发起调用的驱动名称，命令记录据此归属
func ContextWithDriver(ctx context.Context, driver string) context.Context {
	return context.WithValue(ctx, driverKey, driver)
}

// DriverFromContext 从 Context 中提取驱动名称
func DriverFromContext(ctx context.Context) string {
	driver, _ := ctx.Value(driverKey).(string)
	return driver
}
