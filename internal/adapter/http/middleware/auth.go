package middleware

import (
	"net/http"

	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
)

// Auth authenticates the request and stores the identity in the context.
// Endpoints that serve anonymous traffic (health, metrics, swagger) are
// wired outside this middleware.
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			errorResponse(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := m.verifier.Verify(token)
		if err != nil {
			m.log.Debug(r.Context(), "token rejected", "err", err.Error())
			errorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := WithIdentity(r.Context(), identity)
		ctx = wrap.WithParticipantID(ctx, identity.ParticipantID.String())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
