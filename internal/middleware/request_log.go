package middleware

import (
	"net/http"
	"time"

	"github.com/lofichat/internal/logger"
)

// RequestLog логирует длительность каждого HTTP-запроса (асинхронно, не блокирует).
// Медленные запросы (>100ms) попадают в лог всегда, остальные — только при LOG_LEVEL=debug.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer logger.DeferLogDuration("http "+r.Method+" "+normalizePath(r.URL.Path), time.Now())()
		next.ServeHTTP(w, r)
	})
}
