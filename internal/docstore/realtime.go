package docstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/realtime")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("channels", c.collection.Channel())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe открывает realtime-подписку на канал коллекции от имени participantID.
// Соединение восстанавливается автоматически; события, пришедшие во время разрыва, теряются.
// Канал закрывается после вызова unsubscribe или отмены ctx.
func (c *Client) Subscribe(ctx context.Context, participantID string) (<-chan model.RealtimeEvent, func(), error) {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, nil, err
	}
	header := http.Header{}
	if participantID != "" {
		header.Set(headerParticipantID, participantID)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan model.RealtimeEvent, 64)
	var wg sync.WaitGroup

	// Первое подключение синхронно: подписка активна до возврата, если сервер доступен.
	conn, err := c.dial(subCtx, wsURL, header)
	if err != nil {
		logger.Errorf("docstore realtime: %v (повтор в фоне)", err)
	}

	wg.Add(1)
	go func(conn *websocket.Conn) {
		defer wg.Done()
		defer close(out)
		backoff := time.Second
		for {
			if conn != nil {
				c.readLoop(subCtx, conn, out)
				backoff = time.Second
			}
			if subCtx.Err() != nil {
				return
			}
			select {
			case <-subCtx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < c.retryMax {
				backoff *= 2
			}
			next, err := c.dial(subCtx, wsURL, header)
			if err != nil {
				logger.Errorf("docstore realtime reconnect: %v", err)
				conn = nil
				continue
			}
			conn = next
			logger.Info("docstore realtime: переподключено")
		}
	}(conn)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
	return out, unsubscribe, nil
}

func (c *Client) dial(ctx context.Context, wsURL string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readLoop читает кадры до ошибки или отмены ctx.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- model.RealtimeEvent) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !strings.Contains(err.Error(), "use of closed network connection") {
				logger.Errorf("docstore realtime read: %v", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("docstore realtime decode: %v", err)
			continue
		}
		if f.Type != "event" {
			continue
		}
		var ev model.RealtimeEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil {
			logger.Errorf("docstore realtime event decode: %v", err)
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
