package apiserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"billed/internal/auth"
	"billed/internal/core"
	applog "billed/internal/log"
)

type ctxKey struct{}

// sessionFrom returns the identity the bearer token carried.
func sessionFrom(ctx context.Context) (core.Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(core.Session)
	return s, ok
}

// authenticated rejects requests without a valid bearer token and stores the session
// in the context.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sess, err := auth.SessionFromToken(token, s.secret)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token expired"
			}
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rejected bearer token", "error", err)
			writeError(w, http.StatusUnauthorized, msg)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, sess)
		logger := applog.FromContext(ctx).With(applog.FieldEmail, sess.Email, applog.FieldRole, sess.Role.String())
		ctx = context.WithValue(ctx, applog.LoggerContextKey, logger)
		next(w, r.WithContext(ctx))
	})
}
