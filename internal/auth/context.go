package auth

import "context"

type ctxUserKey struct{}

// WithUser returns a context carrying the verified username.
func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, username)
}

// UserFromContext returns the verified username or empty string.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserKey{}).(string); ok {
		return v
	}
	return ""
}
