package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ParticipantIDKey contextKey = "participant_id"

// HeaderParticipantID — заголовок, которым гостевой клиент представляется API.
// Это не аутентификация: id генерируется локально и нужен только для лимитов и пушей.
const HeaderParticipantID = "X-Participant-Id"

// Participant кладёт id участника из заголовка (или query participant_id для WebSocket) в контекст.
func Participant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderParticipantID))
		if id == "" {
			id = strings.TrimSpace(r.URL.Query().Get("participant_id"))
		}
		if id != "" {
			r = r.WithContext(context.WithValue(r.Context(), ParticipantIDKey, id))
		}
		next.ServeHTTP(w, r)
	})
}

// GetParticipantID возвращает id участника из контекста (устанавливается Participant).
func GetParticipantID(ctx context.Context) string {
	v, _ := ctx.Value(ParticipantIDKey).(string)
	return v
}
