package middleware

import (
	"net/http"

	"personnel/internal/domain/auth"
	"personnel/internal/transport/http/api"
)

func RequirePermission(permission string) func(http.Handler) http.Handler {
	return require(func(id auth.Identity) error {
		return auth.RequirePermission(id, permission)
	})
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return require(func(id auth.Identity) error {
		return auth.RequireRole(id, role)
	})
}

func require(check func(auth.Identity) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				api.FailError(w, auth.ErrMissingToken, GetRequestID(r.Context()))
				return
			}
			if err := check(id); err != nil {
				api.FailError(w, err, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
