package logger

import "context"

type ctxKey struct{}

// WithRequestID：请求 id 挂到 context，供访问日志与业务日志关联
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID：未设置时为空串
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
