package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/lofichat/internal/metrics"
)

const (
	rateLimitWindow         = time.Minute
	rateLimitMaxIP          = 200
	rateLimitMaxParticipant = 100
)

type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

var (
	apiRateByIP          = newRateLimiter(rateLimitMaxIP, rateLimitWindow)
	apiRateByParticipant = newRateLimiter(rateLimitMaxParticipant, rateLimitWindow)
)

// RateLimitAPI ограничивает запросы по IP и по id участника (если есть в контексте). 429 при превышении.
// Ставить после Participant и chimw.RealIP.
func RateLimitAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !apiRateByIP.allow(r.RemoteAddr) {
			metrics.RateLimitHits.WithLabelValues("ip").Inc()
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if id := GetParticipantID(r.Context()); id != "" {
			if !apiRateByParticipant.allow("p:" + id) {
				metrics.RateLimitHits.WithLabelValues("participant").Inc()
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
