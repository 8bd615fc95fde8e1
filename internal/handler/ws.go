package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/middleware"
	"github.com/lofichat/internal/ws"
)

type RealtimeHandler struct {
	hub            *ws.Hub
	defaultChannel string
	allowedOrigins string
}

// NewRealtimeHandler создаёт обработчик realtime-подписок. allowedOrigins задаётся как в CORS (через запятую или "*").
func NewRealtimeHandler(hub *ws.Hub, defaultChannel, allowedOrigins string) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, defaultChannel: defaultChannel, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *RealtimeHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// requestedChannels читает channels и channels[] (можно через запятую). Без параметров используется канал коллекции.
func (h *RealtimeHandler) requestedChannels(r *http.Request) []string {
	q := r.URL.Query()
	var out []string
	for _, v := range append(q["channels"], q["channels[]"]...) {
		for _, ch := range strings.Split(v, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				out = append(out, ch)
			}
		}
	}
	if len(out) == 0 {
		out = []string{h.defaultChannel}
	}
	return out
}

func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	channels := h.requestedChannels(r)
	participant := middleware.GetParticipantID(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, participant, channels)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
