package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"docflow/internal/store"
	"docflow/pkg/api"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies each organization's configured request rate.
// Runs after AuthMiddleware; a request without an organization in context
// is rejected.
func RateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limiters := sync.Map{} // organization ID -> cachedLimiter

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org, ok := OrgFromContext(r.Context())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error: "Unauthorized",
					Code:  "401",
				})
				return
			}

			// RateLimit=0 means unlimited
			if org.RateLimit > 0 {
				limiter := getOrCreateLimiter(&limiters, org, 5*time.Minute)
				if !limiter.Allow() {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func getOrCreateLimiter(limiters *sync.Map, org *store.Organization, ttl time.Duration) *rate.Limiter {
	if limiter, ok := limiters.Load(org.ID); ok {
		cached := limiter.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(
		rate.Limit(org.RateLimit),
		org.RateLimitBurst,
	)
	limiters.Store(org.ID, &cachedLimiter{
		limiter:   limiter,
		expiresAt: time.Now().Add(ttl),
	})
	return limiter
}
