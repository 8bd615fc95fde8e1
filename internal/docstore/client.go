// Package docstore — клиент API документов: история, создание сообщений и realtime-подписка по WebSocket.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lofichat/internal/config"
	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

const headerParticipantID = "X-Participant-Id"

// ErrStatus — сервер ответил неожиданным HTTP-статусом.
var ErrStatus = errors.New("docstore: unexpected status")

// Client обращается к коллекции сообщений на API.
type Client struct {
	baseURL    string
	collection config.CollectionConfig
	httpClient *http.Client
	dialer     *websocket.Dialer
	// retryMax — верхняя граница паузы между переподключениями.
	retryMax time.Duration
}

func New(baseURL string, collection config.CollectionConfig) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retryMax:   30 * time.Second,
	}
}

func (c *Client) documentsURL() string {
	return c.baseURL + "/v1/databases/" + url.PathEscape(c.collection.DatabaseID) +
		"/collections/" + url.PathEscape(c.collection.CollectionID) + "/documents"
}

// ListRecent возвращает последние limit документов, новые первыми.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("docstore.ListRecent", time.Now())()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentsURL()+"?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, fmt.Errorf("docstore.ListRecent: %w", err)
	}
	var list model.DocumentList
	if err := c.do(req, http.StatusOK, &list); err != nil {
		return nil, fmt.Errorf("docstore.ListRecent: %w", err)
	}
	return list.Documents, nil
}

// Create создаёт документ; id назначает сервер.
func (c *Client) Create(ctx context.Context, data model.MessageData) (*model.Message, error) {
	defer logger.DeferLogDuration("docstore.Create", time.Now())()
	body, err := json.Marshal(model.CreateDocumentRequest{DocumentID: model.UniqueID, Data: data})
	if err != nil {
		return nil, fmt.Errorf("docstore.Create: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.documentsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("docstore.Create: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerParticipantID, data.SenderID)
	var doc model.Message
	if err := c.do(req, http.StatusCreated, &doc); err != nil {
		return nil, fmt.Errorf("docstore.Create: %w", err)
	}
	return &doc, nil
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e model.APIError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			if e.Type != "" {
				return fmt.Errorf("%w %d %s: %s", ErrStatus, resp.StatusCode, e.Type, e.Error)
			}
			return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
