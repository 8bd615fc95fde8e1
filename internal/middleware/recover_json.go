package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

// responseWriter wraps http.ResponseWriter to detect if the response was already written.
// Реализует http.Hijacker для поддержки WebSocket upgrade.
type responseWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.status = code
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

// Hijack делегирует к нижележащему ResponseWriter, если он реализует http.Hijacker (нужно для WebSocket).
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// RecoverJSON при панике в handler логирует её вместе с участником и отдаёт ошибку API
// документов с кодом 500, если ответ ещё не отправлен.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if err := recover(); err != nil {
				logger.Errorf("panic recovered %s %s participant=%s: %v",
					r.Method, normalizePath(r.URL.Path), GetParticipantID(r.Context()), err)
				if wrap.wrote {
					return
				}
				wrap.ResponseWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
				wrap.ResponseWriter.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(wrap.ResponseWriter).Encode(model.APIError{
					Error: "internal server error",
					Code:  http.StatusInternalServerError,
					Type:  model.ErrTypeInternal,
				})
			}
		}()
		next.ServeHTTP(wrap, r)
	})
}
