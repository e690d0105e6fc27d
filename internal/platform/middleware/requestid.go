package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"keystone/pkg/requestcontext"
)

// RequestID assigns each request an identifier for log correlation. An
// incoming X-Request-ID is honored so gateway-assigned IDs survive.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), rid)
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
