package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/lofichat/internal/config"
	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/metrics"
	"github.com/lofichat/internal/model"
	"github.com/lofichat/internal/push"
	"github.com/lofichat/internal/repository"
	"github.com/lofichat/internal/storage"
)

// DocumentStore — хранилище документов коллекции сообщений.
type DocumentStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListRecent(ctx context.Context, limit, offset int) ([]model.Message, error)
	Count(ctx context.Context) (int, error)
}

// Broadcaster рассылает пуш о новом сообщении.
type Broadcaster interface {
	Broadcast(ctx context.Context, req push.BroadcastRequest)
}

type DocumentsHandler struct {
	store      DocumentStore
	bus        storage.EventBus
	push       Broadcaster
	collection config.CollectionConfig
	chat       config.ChatConfig
}

func NewDocumentsHandler(store DocumentStore, bus storage.EventBus, pusher Broadcaster, collection config.CollectionConfig, chat config.ChatConfig) *DocumentsHandler {
	return &DocumentsHandler{store: store, bus: bus, push: pusher, collection: collection, chat: chat}
}

// collectionMatches проверяет {databaseId}/{collectionId} из пути.
func (h *DocumentsHandler) collectionMatches(r *http.Request) bool {
	return chi.URLParam(r, "databaseId") == h.collection.DatabaseID &&
		chi.URLParam(r, "collectionId") == h.collection.CollectionID
}

// List отдаёт последние документы, новые первыми.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.collectionMatches(r) {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	limit := queryInt(r, "limit", h.chat.HistoryLimit)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 {
		limit = h.chat.HistoryLimit
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	start := time.Now()
	docs, err := h.store.ListRecent(r.Context(), limit, offset)
	if err != nil {
		logger.Errorf("documents list: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	total, err := h.store.Count(r.Context())
	if err != nil {
		logger.Errorf("documents count: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())

	if docs == nil {
		docs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, model.DocumentList{Total: total, Documents: docs})
}

func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.collectionMatches(r) {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	doc, err := h.store.GetByID(r.Context(), chi.URLParam(r, "documentId"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		logger.Errorf("documents get: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Create сохраняет сообщение, публикует realtime-событие и рассылает пуш остальным участникам.
func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.collectionMatches(r) {
		writeError(w, http.StatusNotFound, "collection not found")
		return
	}
	var req model.CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	data := req.Data
	data.SenderID = strings.TrimSpace(data.SenderID)
	data.SenderName = strings.TrimSpace(data.SenderName)
	data.MessageContent = strings.TrimSpace(data.MessageContent)
	if data.SenderID == "" || data.SenderName == "" {
		writeError(w, http.StatusBadRequest, "senderId and senderName required")
		return
	}
	if data.MessageContent == "" {
		writeError(w, http.StatusBadRequest, "messageContent required")
		return
	}
	if utf8.RuneCountInString(data.MessageContent) > h.chat.MaxMessageLength {
		writeError(w, http.StatusBadRequest, "messageContent too long")
		return
	}

	if h.chat.SendRateLimit > 0 {
		ok, err := h.bus.CheckRateLimit(r.Context(), "send:"+data.SenderID, h.chat.SendRateLimit, time.Minute)
		if err != nil {
			logger.Errorf("documents rate limit: %v", err)
		} else if !ok {
			metrics.RateLimitHits.WithLabelValues("documents").Inc()
			writeError(w, http.StatusTooManyRequests, "too many messages")
			return
		}
	}

	if data.Timestamp == "" {
		data.Timestamp = model.FormatTimestamp(time.Now())
	}
	doc := &model.Message{
		ID:             req.DocumentID,
		SenderID:       data.SenderID,
		SenderName:     data.SenderName,
		MessageContent: data.MessageContent,
		Timestamp:      data.Timestamp,
	}
	if err := h.store.Create(r.Context(), doc); err != nil {
		logger.Errorf("documents create: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create document")
		return
	}
	metrics.DocumentsCreated.Inc()

	channel := h.collection.Channel()
	ev := model.RealtimeEvent{
		Events:    model.CreateEvents(h.collection.DatabaseID, h.collection.CollectionID, doc.ID),
		Channels:  []string{channel},
		Timestamp: model.FormatTimestamp(time.Now()),
		Payload:   *doc,
	}
	if err := h.bus.Publish(r.Context(), channel, ev); err != nil {
		logger.Errorf("documents publish %s: %v", doc.ID, err)
	}

	if h.push != nil {
		note := push.BroadcastRequest{
			ExceptID: doc.SenderID,
			Title:    doc.SenderName,
			Body:     model.Preview(doc.MessageContent, h.chat.PreviewLength),
			Data:     map[string]string{"documentId": doc.ID},
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			h.push.Broadcast(ctx, note)
		}()
	}

	writeJSON(w, http.StatusCreated, doc)
}
