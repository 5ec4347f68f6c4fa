package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-user rate limiting for API requests. Reads and
// writes get separate budgets since onboarding clients poll status endpoints.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	readLimit  rate.Limit
	writeLimit rate.Limit
	burstSize  int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(readRPS, writeRPS, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		readLimit:  rate.Limit(readRPS),
		writeLimit: rate.Limit(writeRPS),
		burstSize:  burst,
	}
}

// getLimiter returns the rate limiter for one user/class pair
func (rl *RateLimiter) getLimiter(userID string, write bool) *rate.Limiter {
	key := userID + ":r"
	limit := rl.readLimit
	if write {
		key = userID + ":w"
		limit = rl.writeLimit
	}

	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limit, rl.burstSize)
	rl.limiters[key] = limiter

	return limiter
}

// RateLimitMiddleware creates a middleware that enforces per-user rate limits.
// Requests without a user header are bucketed by remote address.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-User-ID")
			if key == "" {
				key = r.RemoteAddr
			}

			write := r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions
			if !rl.getLimiter(key, write).Allow() {
				respondError(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Rate limit exceeded, slow down", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
