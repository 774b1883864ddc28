// Package request provides request-ID middleware for correlation across logs.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"pdp/pkg/requestcontext"
)

// Header carries the inbound/outbound request ID.
const Header = "X-Request-ID"

// RequestID assigns a request ID to every request, honoring an inbound
// X-Request-ID header when present so sidecars keep upstream correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		w.Header().Set(Header, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
