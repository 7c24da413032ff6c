package httpx

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled continuously at max tokens per minute.
type RateLimiter struct {
	mu     sync.Mutex
	tokens float64
	max    float64
	last   time.Time
	now    func() time.Time
}

func NewRateLimiter(maxPerMinute int) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 60
	}
	return &RateLimiter{
		tokens: float64(maxPerMinute),
		max:    float64(maxPerMinute),
		last:   time.Now(),
		now:    time.Now,
	}
}

func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens += now.Sub(rl.last).Minutes() * rl.max
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	rl.last = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

func LimitMiddleware(rl *RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow() {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit: "+strconv.Itoa(int(rl.max))+" req/min")
			return
		}
		next.ServeHTTP(w, r)
	})
}
