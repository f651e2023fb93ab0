package shared

import "context"

// Identity is the authenticated caller as handed over by the identity layer.
// The application never authenticates; it trusts the opaque user id the
// upstream proxy injects.
type Identity struct {
	UserID string
	Roles  []string
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool {
	for _, r := range id.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok && id.UserID != ""
}
