package auth

import "context"

type ctxKey struct{}

// WithCallerID returns a context carrying a verified caller identity.
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// CallerID reports the identity stored by WithCallerID.
func CallerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
