package shared

import (
	"net/http"
	"strings"
)

const (
	// UserIDHeader carries the opaque authenticated user id injected by the
	// identity proxy in front of this service.
	UserIDHeader = "X-User-ID"
	// UserRolesHeader carries a comma separated role list from the proxy.
	UserRolesHeader = "X-User-Roles"
)

// IdentityMiddleware lifts the proxy-supplied identity headers into context.
// The service never authenticates; absent headers simply yield no identity.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		var roles []string
		for _, role := range strings.Split(r.Header.Get(UserRolesHeader), ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		ctx := ContextWithIdentity(r.Context(), Identity{UserID: userID, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without an authenticated identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			RespondError(w, http.StatusUnauthorized, UserSafeMessage(ErrUnauthenticated))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose identity lacks the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			RespondError(w, http.StatusUnauthorized, UserSafeMessage(ErrUnauthenticated))
			return
		}
		if !id.IsAdmin() {
			RespondError(w, http.StatusForbidden, UserSafeMessage(ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}
