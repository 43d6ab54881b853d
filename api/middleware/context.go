package middleware

import "context"

type contextKey string

const (
	ctxUserID contextKey = "auth.user_id"
	ctxRole   contextKey = "auth.role"
)

// WithUser injects an authenticated identity into the context. Exported so
// handler tests can exercise authorized paths without minting tokens.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxRole, role)
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}
