package model

import (
	"strings"
	"time"
)

// Message — документ коллекции сообщений мирового чата.
// Timestamp задаёт клиент при отправке (ISO-8601); строгая монотонность между клиентами не гарантируется.
type Message struct {
	ID             string    `json:"$id"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	MessageContent string    `json:"messageContent"`
	Timestamp      string    `json:"timestamp"`
	CreatedAt      time.Time `json:"$createdAt,omitempty"`
}

// MessageData — поля, которые клиент передаёт при создании документа.
type MessageData struct {
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	MessageContent string `json:"messageContent"`
	Timestamp      string `json:"timestamp"`
}

// UniqueID просит сервер сгенерировать идентификатор документа.
const UniqueID = "unique()"

// CreateDocumentRequest — тело POST .../documents.
type CreateDocumentRequest struct {
	DocumentID string      `json:"documentId"`
	Data       MessageData `json:"data"`
}

// DocumentList — ответ GET .../documents.
type DocumentList struct {
	Total     int       `json:"total"`
	Documents []Message `json:"documents"`
}

// APIError — тело ответа API документов при ошибке.
type APIError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	Type  string `json:"type"`
}

// Типы ошибок API документов.
const (
	ErrTypeInvalid     = "document_invalid"
	ErrTypeNotFound    = "document_not_found"
	ErrTypeRateLimited = "rate_limit_exceeded"
	ErrTypeInternal    = "general_unknown"
)

// ErrorType подбирает тип ошибки по HTTP-статусу.
func ErrorType(status int) string {
	switch {
	case status == 404:
		return ErrTypeNotFound
	case status == 429:
		return ErrTypeRateLimited
	case status >= 400 && status < 500:
		return ErrTypeInvalid
	default:
		return ErrTypeInternal
	}
}

// EventDocumentCreate — событие создания документа в любой коллекции.
const EventDocumentCreate = "databases.*.collections.*.documents.*.create"

// RealtimeEvent — событие realtime-канала коллекции.
type RealtimeEvent struct {
	Events    []string `json:"events"`
	Channels  []string `json:"channels"`
	Timestamp string   `json:"timestamp"`
	Payload   Message  `json:"payload"`
}

// Has сообщает, содержит ли событие указанный тип.
func (e RealtimeEvent) Has(event string) bool {
	for _, ev := range e.Events {
		if ev == event {
			return true
		}
	}
	return false
}

// CreateEvents возвращает список событий для созданного документа: конкретные и с подстановками.
func CreateEvents(databaseID, collectionID, documentID string) []string {
	return []string{
		"databases." + databaseID + ".collections." + collectionID + ".documents." + documentID + ".create",
		"databases." + databaseID + ".collections." + collectionID + ".documents.*.create",
		"databases.*.collections.*.documents." + documentID + ".create",
		EventDocumentCreate,
	}
}

// TimestampLayout — ISO-8601 с миллисекундами в UTC, как у Date.toISOString().
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp форматирует момент времени для поля timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Preview обрезает текст до n символов (рун) с многоточием.
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
