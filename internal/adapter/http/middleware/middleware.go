package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/olzhask/ride-dispatch/internal/service/auth"
	"github.com/olzhask/ride-dispatch/pkg/logger"
)

type (
	// TokenVerifier turns a bearer token into an authenticated identity.
	TokenVerifier interface {
		Verify(token string) (*auth.Identity, error)
	}

	Middleware struct {
		verifier TokenVerifier
		log      logger.Logger
	}
)

func NewMiddleware(verifier TokenVerifier, log logger.Logger) *Middleware {
	return &Middleware{
		verifier: verifier,
		log:      log,
	}
}

type identityKeyStruct struct{}

var identityKey = &identityKeyStruct{}

// IdentityFromContext returns the authenticated identity set by Auth.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*auth.Identity)
	return id, ok
}

// WithIdentity stores an identity in the context.
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// bearerToken extracts the token from the Authorization header, falling
// back to the 'token' query parameter for websocket clients.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
