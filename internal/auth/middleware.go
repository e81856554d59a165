package auth

import (
	"context"
	"net/http"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/transport"
)

// ProfileSyncer mirrors the token's profile into the local users table so
// enrollment rows can reference the caller.
type ProfileSyncer interface {
	Sync(ctx context.Context, caller *errors.User) error
}

type Middleware struct {
	*transport.BaseHandler
	validator *JWTValidator
	profiles  ProfileSyncer
}

func NewMiddleware(baseHandler *transport.BaseHandler, validator *JWTValidator, profiles ProfileSyncer) *Middleware {
	return &Middleware{
		BaseHandler: baseHandler,
		validator:   validator,
		profiles:    profiles,
	}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.HandleError(w, errors.NewUnauthorizedError("missing authorization token", errors.ErrCodeInvalidToken))
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.Logger.Warn("token validation failed", "error", err)
			m.HandleServiceError(w, err)
			return
		}

		caller := m.validator.Caller(claims)
		if m.profiles != nil {
			if err := m.profiles.Sync(r.Context(), caller); err != nil {
				m.Logger.Error("auth middleware: failed to sync user profile", "user_id", caller.ID, "error", err)
				m.HandleServiceError(w, err)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(errors.ContextWithUser(r.Context(), caller)))
	})
}
