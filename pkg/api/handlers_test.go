package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/harun/mnemo/pkg/memory"
	"github.com/harun/mnemo/pkg/memory/embedder"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	handle := embedder.NewHandle(func() (embedder.Provider, error) {
		return embedder.NewMockProvider(384), nil
	}, zerolog.Nop())
	handle.Load(false)

	store, err := memory.Open(memory.Config{
		DBPath:   filepath.Join(t.TempDir(), "memories.db"),
		Embedder: handle,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv, err := NewServer(Options{}, store, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:50000"
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decode(t, rec)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, true, payload["model_ready"])
}

func TestCreateMemoryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
		Content:  "the cat sat on the mat",
		Metadata: map[string]any{"topic": "cats"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	payload := decode(t, rec)
	assert.Equal(t, "stored", payload["status"])
	assert.Equal(t, "the cat sat on the mat", payload["content"])
	assert.NotNil(t, payload["id"])
	assert.NotNil(t, payload["created_at"])
}

func TestCreateMemoryEndpoint_Validation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/memories", bytes.NewBufferString("not json"))
	req.RemoteAddr = "127.0.0.1:50000"
	rec2 := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestCreateMemoryEndpoint_Conflict(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
		Content: "The weather is sunny today",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
		Content: "sunny weather today",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "conflict_detected", payload["status"])
	assert.Contains(t, payload["message"], "force=true")
	similar := payload["similar_memories"].([]any)
	require.Len(t, similar, 1)
	assert.Equal(t, "The weather is sunny today", similar[0].(map[string]any)["content"])

	rec = doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
		Content: "sunny weather today",
		Force:   true,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
		Content: "the cat sat on the mat",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/memories/search?q=cat&threshold=0.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.EqualValues(t, 1, payload["count"])

	rec = doJSON(t, srv, http.MethodGet, "/api/memories/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDeleteEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
		Content: "coffee brewing ratio",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decode(t, rec)["id"].(float64))

	rec = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/memories/%d", id), updateRequest{
		Content: "rust borrow checker ownership",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "updated", payload["status"])
	assert.Equal(t, "rust borrow checker ownership", payload["content"])

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/memories/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/memories/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, "/api/memories/notanumber", updateRequest{Content: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for i := 1; i <= 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
			Content: fmt.Sprintf("note number %d", i),
			Force:   true,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/memories?page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.EqualValues(t, 3, payload["total"])
	assert.EqualValues(t, 2, payload["total_pages"])
	assert.Len(t, payload["memories"].([]any), 2)
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", createRequest{
		Content: "quantum physics lecture notes",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.EqualValues(t, 1, payload["total_memories"])
	assert.Equal(t, "mock", payload["model"])
}

func TestRateLimitResponse(t *testing.T) {
	srv := newTestServer(t)
	srv.rateLimiter.Stop()
	srv.rateLimiter = NewRateLimiter(2)
	t.Cleanup(func() { srv.rateLimiter.Stop() })

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = doJSON(t, srv, http.MethodGet, "/api/stats", nil)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestShutdownRefusesNewRequests(t *testing.T) {
	srv := newTestServer(t)

	require.NoError(t, srv.Stop())

	rec := doJSON(t, srv, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
