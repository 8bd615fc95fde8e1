package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDisabledIsNoop(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Subscribe(context.Background(), "user_1", Subscription{Endpoint: "e"}))
	c.Broadcast(context.Background(), BroadcastRequest{Title: "t"})
}

func TestClientBroadcast(t *testing.T) {
	t.Setenv("INTERNAL_SECRET", "s3cret")
	var got BroadcastRequest
	var secret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/broadcast", r.URL.Path)
		secret = r.Header.Get("X-Internal-Secret")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	require.True(t, c.Enabled())
	c.Broadcast(context.Background(), BroadcastRequest{ExceptID: "user_1", Title: "CozyCat7", Body: "hi"})
	assert.Equal(t, "user_1", got.ExceptID)
	assert.Equal(t, "hi", got.Body)
	assert.Equal(t, "s3cret", secret)
}

func TestClientSubscribeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Subscribe(context.Background(), "user_1", Subscription{Endpoint: "e"})
	assert.Error(t, err)
}

func TestEnsureVAPIDKeysPersists(t *testing.T) {
	path := t.TempDir() + "/keys/vapid.json"
	first, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	require.NotEmpty(t, first.PublicKey)

	second, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	opts := second.Options("lofichat", 30)
	assert.Equal(t, first.PublicKey, opts.VAPIDPublicKey)
	assert.Equal(t, 30, opts.TTL)
}
