package middleware

import (
	"encoding/json"
	"net/http"

	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

func errorResponse(w http.ResponseWriter, status int, message any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

// RequestID injects a generated request id into the logging context.
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.New()
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := wrap.WithRequestID(r.Context(), id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
