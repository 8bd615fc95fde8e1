package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofichat/internal/config"
	"github.com/lofichat/internal/model"
)

var testCollection = config.CollectionConfig{DatabaseID: "lofi", CollectionID: "messages"}

const docsPath = "/v1/databases/lofi/collections/messages/documents"

func TestListRecent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, docsPath, r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(model.DocumentList{Total: 2, Documents: []model.Message{{ID: "b"}, {ID: "a"}}})
	}))
	defer srv.Close()

	docs, err := New(srv.URL, testCollection).ListRecent(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
}

func TestCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "user_1", r.Header.Get(headerParticipantID))
		var req model.CreateDocumentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.UniqueID, req.DocumentID)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(model.Message{
			ID:             "srv1",
			SenderID:       req.Data.SenderID,
			MessageContent: req.Data.MessageContent,
		})
	}))
	defer srv.Close()

	doc, err := New(srv.URL, testCollection).Create(context.Background(), model.MessageData{SenderID: "user_1", MessageContent: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "srv1", doc.ID)
	assert.Equal(t, "hi", doc.MessageContent)
}

func TestCreateUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"too many messages","code":429,"type":"rate_limit_exceeded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, testCollection).Create(context.Background(), model.MessageData{SenderID: "u"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))
	assert.Contains(t, err.Error(), "too many messages")
	assert.Contains(t, err.Error(), "rate_limit_exceeded")
}

func eventFrame(id string) map[string]any {
	return map[string]any{
		"type": "event",
		"payload": model.RealtimeEvent{
			Events:   model.CreateEvents("lofi", "messages", id),
			Channels: []string{testCollection.Channel()},
			Payload:  model.Message{ID: id},
		},
	}
}

func TestSubscribeReceivesEventsAndReconnects(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/realtime", r.URL.Path)
		assert.Equal(t, testCollection.Channel(), r.URL.Query().Get("channels"))
		assert.Equal(t, "user_1", r.Header.Get(headerParticipantID))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		conn.WriteJSON(map[string]any{"type": "connected", "payload": map[string]any{}})
		if n == 1 {
			conn.WriteJSON(eventFrame("first"))
			return
		}
		conn.WriteJSON(eventFrame("second"))
		conn.ReadMessage()
	}))
	defer srv.Close()

	events, unsubscribe, err := New(srv.URL, testCollection).Subscribe(context.Background(), "user_1")
	require.NoError(t, err)

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Payload.ID)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout, got %v", got)
		}
	}
	assert.Equal(t, []string{"first", "second"}, got)
	assert.EqualValues(t, 2, conns.Load())

	unsubscribe()
	_, open := <-events
	assert.False(t, open)
}
