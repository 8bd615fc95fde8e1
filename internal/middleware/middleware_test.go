package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantFromHeaderAndQuery(t *testing.T) {
	var got string
	h := Participant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetParticipantID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderParticipantID, " user_1 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "user_1", got)

	req = httptest.NewRequest(http.MethodGet, "/v1/realtime?participant_id=user_2", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "user_2", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, got)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	assert.True(t, rl.allow("k"))
	assert.True(t, rl.allow("k"))
	assert.False(t, rl.allow("k"))
	assert.True(t, rl.allow("other"))

	short := newRateLimiter(1, 10*time.Millisecond)
	assert.True(t, short.allow("k"))
	assert.False(t, short.allow("k"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, short.allow("k"))
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":500,"type":"general_unknown"}`, rec.Body.String())
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/v1/databases/:db/collections/:col/documents",
		normalizePath("/v1/databases/lofi/collections/messages/documents"))
	assert.Equal(t, "/v1/databases/:db/collections/:col/documents/:id",
		normalizePath("/v1/databases/lofi/collections/messages/documents/01HX"))
	assert.Equal(t, "/health", normalizePath("/health"))
}

func TestInternalOnly(t *testing.T) {
	t.Setenv("INTERNAL_SECRET", "s3cret")
	h := InternalOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/broadcast", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/broadcast", nil)
	req.RemoteAddr = "8.8.8.8:4000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("X-Internal-Secret", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
