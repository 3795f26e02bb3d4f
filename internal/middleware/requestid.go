package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/eportal-gateway/gateway/internal/ctxkeys"
)

// RequestID stamps every request with an X-Request-ID header, generating
// one when the caller did not supply it.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := context.WithValue(r.Context(), ctxkeys.RequestIDKey, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
