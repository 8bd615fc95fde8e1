package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lofichat/internal/logger"
)

// Client вызывает микросервис пуш-уведомлений. С пустым URL методы no-op.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient создаёт клиент. С пустым baseURL пуши отключены.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secret:     strings.TrimSpace(os.Getenv("INTERNAL_SECRET")),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled сообщает, настроен ли push-сервис.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// Subscription — подписка из браузера (PushManager.subscribe()).
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// SubscribeRequest — тело запроса подписки.
type SubscribeRequest struct {
	ParticipantID string       `json:"participant_id"`
	Subscription  Subscription `json:"subscription"`
}

// UnsubscribeRequest — тело запроса отписки.
type UnsubscribeRequest struct {
	ParticipantID string `json:"participant_id"`
	Endpoint      string `json:"endpoint"`
}

// BroadcastRequest — уведомление всем подписанным участникам, кроме ExceptID (автора сообщения).
type BroadcastRequest struct {
	ExceptID string            `json:"except_id,omitempty"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

// Subscribe сохраняет подписку участника на push-сервисе.
func (c *Client) Subscribe(ctx context.Context, participantID string, sub Subscription) error {
	if c.baseURL == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/api/subscribe", SubscribeRequest{ParticipantID: participantID, Subscription: sub})
}

// Unsubscribe удаляет подписку по endpoint.
func (c *Client) Unsubscribe(ctx context.Context, participantID, endpoint string) error {
	if c.baseURL == "" {
		return nil
	}
	return c.do(ctx, http.MethodDelete, "/api/subscribe", UnsubscribeRequest{ParticipantID: participantID, Endpoint: endpoint})
}

// Broadcast рассылает пуш о новом сообщении. Ошибки только логируются.
func (c *Client) Broadcast(ctx context.Context, req BroadcastRequest) {
	if c.baseURL == "" {
		return
	}
	if err := c.do(ctx, http.MethodPost, "/api/broadcast", req); err != nil {
		logger.Errorf("push broadcast: %v", err)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Internal-Secret", c.secret)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("push %s %s: %d", method, path, resp.StatusCode)
	}
	return nil
}
