package utils

import "context"

type contextKey string

const (
	ContextKeyToken         contextKey = "token"
	ContextKeyUserId        contextKey = "user_id"
	ContextKeyUsername      contextKey = "username"
	ContextKeyCorrelationId contextKey = "correlation_id"
)

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextKeyToken, token)
}

func GetTokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyToken).(string)
	return v, ok
}

func SetUserIdInContext(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ContextKeyUserId, id)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(ContextKeyUserId).(int)
	return v, ok
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ContextKeyUsername, username)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUsername).(string)
	return v, ok
}

func SetCorrelationIdInContext(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationId, cid)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyCorrelationId).(string)
	return v, ok
}
