package middleware

import (
	"net/http"

	"github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/pkg/logger"
)

// UserContext tags the request logger with the authenticated caller.
// It must run after authentication.
func UserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := internal.UserFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := logger.With(r.Context(), "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
