package auth

import "context"

type ctxKey int

const ctxIdentity ctxKey = iota

// WithIdentity attaches the connection's authenticated identity to a
// handler context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxIdentity).(Identity)
	return v, ok && v.ID != ""
}
