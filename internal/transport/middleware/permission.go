package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/pkg/logger"
)

// RequireAdmin rejects callers the identity provider did not mark as admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := internal.UserFromContext(r.Context())
		if !ok {
			writeAppError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
			return
		}

		if !user.IsAdmin() {
			logger.FromOr(r.Context(), slog.Default()).Warn("access denied: admin required",
				"user_id", user.ID,
				"roles", user.Roles)
			writeAppError(w, internal.ErrAdminRequired)
			return
		}

		next.ServeHTTP(w, r)
	})
}
