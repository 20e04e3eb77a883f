package middleware

import (
	"net/http"

	"github.com/graphium/importsvc/internal/auth"
)

// Authenticate parses the proxy identity headers once per request and stashes
// the resulting actor in the context. Requests without a parseable identity
// pass through untouched; the handler rejects them when an actor is required.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, err := auth.ActorFromRequest(r); err == nil {
			r = r.WithContext(auth.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
