package context

import (
	stdcontext "context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	userIDKey    ctxKey = "user_id"
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithUserID tags the context with the user an entitlement call acts on.
func WithUserID(ctx stdcontext.Context, userID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
}

func UserIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userIDKey).(string)
	return v
}
