package auth

import "context"

// Identity is the resolved caller of an operation. Root is decided once,
// during identity extraction; nothing downstream re-derives it from raw ids.
type Identity struct {
	UserID string
	Root   bool
}

// Anonymous reports whether the identity carries no authenticated user.
func (i Identity) Anonymous() bool {
	return i.UserID == "" && !i.Root
}

type identityContextKey struct{}

// ContextWithIdentity attaches the resolved caller to the context.
func ContextWithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the resolved caller from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || v.Anonymous() {
		return Identity{}, false
	}
	return v, true
}
