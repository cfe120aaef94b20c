package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/harun/mnemo/pkg/memory"
	"github.com/harun/mnemo/pkg/memory/embedder"
	"github.com/mark3labs/mcp-go/mcp"
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

	return New(store, "test", Options{}, zerolog.Nop())
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultJSON decodes the text payload of a tool result.
func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestWriteAndSearchTools(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleWrite(ctx, callRequest(map[string]any{
		"content":  "the cat sat on the mat",
		"metadata": map[string]any{"topic": "cats"},
	}))
	require.NoError(t, err)
	payload := resultJSON(t, res)
	assert.Equal(t, "stored", payload["status"])
	assert.Equal(t, "the cat sat on the mat", payload["content"])
	assert.NotNil(t, payload["id"])
	assert.NotNil(t, payload["created_at"])

	res, err = srv.handleSearch(ctx, callRequest(map[string]any{
		"query":                "cat",
		"similarity_threshold": 0.1,
	}))
	require.NoError(t, err)
	payload = resultJSON(t, res)
	assert.EqualValues(t, 1, payload["count"])
	results := payload["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "the cat sat on the mat", first["content"])
	assert.Greater(t, first["similarity"].(float64), 0.1)
}

func TestWriteTool_DuplicateConflict(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.handleWrite(ctx, callRequest(map[string]any{
		"content": "The weather is sunny today",
	}))
	require.NoError(t, err)

	res, err := srv.handleWrite(ctx, callRequest(map[string]any{
		"content": "sunny weather today",
	}))
	require.NoError(t, err)
	payload := resultJSON(t, res)
	assert.Equal(t, "conflict_detected", payload["status"])
	assert.Contains(t, payload["message"], "update_memory")
	similar := payload["similar_memories"].([]any)
	require.Len(t, similar, 1)
	assert.Equal(t, "The weather is sunny today", similar[0].(map[string]any)["content"])

	// force stores it anyway
	res, err = srv.handleWrite(ctx, callRequest(map[string]any{
		"content": "sunny weather today",
		"force":   true,
	}))
	require.NoError(t, err)
	payload = resultJSON(t, res)
	assert.Equal(t, "stored", payload["status"])
}

func TestWriteTool_MissingContent(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.handleWrite(context.Background(), callRequest(map[string]any{}))
	assert.ErrorContains(t, err, "content")
}

func TestUpdateTool(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleWrite(ctx, callRequest(map[string]any{
		"content": "coffee brewing ratio",
	}))
	require.NoError(t, err)
	id := resultJSON(t, res)["id"].(float64)

	res, err = srv.handleUpdate(ctx, callRequest(map[string]any{
		"id":      id,
		"content": "rust borrow checker ownership",
	}))
	require.NoError(t, err)
	payload := resultJSON(t, res)
	assert.Equal(t, "updated", payload["status"])
	assert.EqualValues(t, id, payload["id"])
	assert.Equal(t, "rust borrow checker ownership", payload["content"])
	assert.NotNil(t, payload["updated_at"])
}

func TestUpdateTool_NotFoundIsStructuredError(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.handleUpdate(context.Background(), callRequest(map[string]any{
		"id":      float64(9999),
		"content": "anything",
	}))
	require.NoError(t, err)
	payload := resultJSON(t, res)
	assert.Equal(t, "error", payload["status"])
	assert.Contains(t, payload["message"], "not found")
}

func TestDeleteTool(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleWrite(ctx, callRequest(map[string]any{
		"content": "quantum physics lecture notes",
	}))
	require.NoError(t, err)
	id := resultJSON(t, res)["id"].(float64)

	res, err = srv.handleDelete(ctx, callRequest(map[string]any{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, "deleted", resultJSON(t, res)["status"])

	res, err = srv.handleDelete(ctx, callRequest(map[string]any{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, "error", resultJSON(t, res)["status"])
}

func TestListTool(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	for _, content := range []string{"note number 1", "note number 2", "note number 3"} {
		_, err := srv.handleWrite(ctx, callRequest(map[string]any{
			"content": content,
			"force":   true,
		}))
		require.NoError(t, err)
	}

	res, err := srv.handleList(ctx, callRequest(map[string]any{
		"page":  float64(1),
		"limit": float64(2),
	}))
	require.NoError(t, err)
	payload := resultJSON(t, res)
	assert.EqualValues(t, 3, payload["total"])
	assert.EqualValues(t, 2, payload["total_pages"])
	memories := payload["memories"].([]any)
	require.Len(t, memories, 2)
	assert.Equal(t, "note number 3", memories[0].(map[string]any)["content"])
}

func TestMetadataArg(t *testing.T) {
	meta, err := metadataArg(map[string]any{"metadata": map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, meta)

	meta, err = metadataArg(map[string]any{"metadata": `{"k":"v"}`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, meta)

	meta, err = metadataArg(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = metadataArg(map[string]any{"metadata": 42})
	assert.Error(t, err)
}
