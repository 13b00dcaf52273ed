package middleware

import (
	"net/http"

	"docflow/internal/logger"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID between client and server.
const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware assigns every request a correlation ID. A client-sent
// X-Request-Id is kept, otherwise a new one is generated. The ID is stored
// in the request context and echoed on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), reqID)))
	})
}
