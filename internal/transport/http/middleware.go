package http

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const callerIDKey contextKey = "caller_entity_id"

func setCallerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

// callerID returns the entity id resolved from the bearer token, if any.
// It is stored on the request context only: neither the handlers nor the
// logging middleware read it, and the command surface does not gate on
// it since spec.md's authorization model evaluates permissions
// per explicit target entity, not per HTTP caller.
func callerID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(callerIDKey).(int64)
	return id, ok
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, errUnauthenticated)
			return
		}

		entityID, err := s.authn.Authenticate(token)
		if err != nil {
			s.writeError(w, errUnauthenticated)
			return
		}

		ctx := setCallerID(r.Context(), entityID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
