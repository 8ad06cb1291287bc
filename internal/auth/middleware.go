package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/elberthomay/storefront/internal/domain"
	"github.com/elberthomay/storefront/internal/httpapi"
)

type contextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(domain.Actor)
	return actor, ok
}

type Middleware struct {
	sessions *SessionRepository
	logger   *slog.Logger
}

func NewMiddleware(sessions *SessionRepository, logger *slog.Logger) *Middleware {
	return &Middleware{sessions: sessions, logger: logger}
}

// Require wraps a handler so it only runs with a valid bearer session token,
// placing the resolved actor on the request context.
func (m *Middleware) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpapi.WriteError(w, m.logger, http.StatusUnauthorized, "missing session token")
			return
		}

		actor, err := m.sessions.ActorForToken(r.Context(), token)
		if err != nil {
			m.logger.Error("failed to resolve session", "error", err)
			httpapi.WriteError(w, m.logger, http.StatusInternalServerError, "internal server error")
			return
		}
		if actor == nil {
			httpapi.WriteError(w, m.logger, http.StatusUnauthorized, "invalid session token")
			return
		}

		next(w, r.WithContext(WithActor(r.Context(), *actor)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	if _, err := uuid.Parse(token); err != nil {
		return "", false
	}
	return token, true
}
