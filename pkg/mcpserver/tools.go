package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harun/mnemo/pkg/memory"
	"github.com/harun/mnemo/pkg/memory/embedder"
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(buildSearchTool(), s.handleSearch)
	s.mcp.AddTool(buildWriteTool(), s.handleWrite)
	s.mcp.AddTool(buildUpdateTool(), s.handleUpdate)
	s.mcp.AddTool(buildDeleteTool(), s.handleDelete)
	s.mcp.AddTool(buildListTool(), s.handleList)
}

func buildSearchTool() mcp.Tool {
	return mcp.NewTool(
		"search_memory",
		mcp.WithDescription("Searches stored memories by semantic similarity and returns the best matches with their similarity scores."),
		mcp.WithString("query",
			mcp.Description("Natural language query to search for"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default 5)"),
		),
		mcp.WithNumber("similarity_threshold",
			mcp.Description("Minimum similarity in [0,1]; lower values return more, looser matches"),
		),
	)
}

func buildWriteTool() mcp.Tool {
	return mcp.NewTool(
		"write_memory",
		mcp.WithDescription("Stores a new memory. If similar memories already exist the write is refused and the conflicts are returned; pass force to store anyway."),
		mcp.WithString("content",
			mcp.Description("Textual content to remember"),
			mcp.Required(),
		),
		mcp.WithObject("metadata",
			mcp.Description("Arbitrary JSON metadata to attach to the memory"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Store even when similar memories exist"),
		),
	)
}

func buildUpdateTool() mcp.Tool {
	return mcp.NewTool(
		"update_memory",
		mcp.WithDescription("Replaces the content of an existing memory and re-embeds it."),
		mcp.WithNumber("id",
			mcp.Description("Memory ID to update"),
			mcp.Required(),
		),
		mcp.WithString("content",
			mcp.Description("New textual content"),
			mcp.Required(),
		),
		mcp.WithObject("metadata",
			mcp.Description("Replacement JSON metadata"),
		),
	)
}

func buildDeleteTool() mcp.Tool {
	return mcp.NewTool(
		"delete_memory",
		mcp.WithDescription("Deletes a memory by ID."),
		mcp.WithNumber("id",
			mcp.Description("Memory ID to delete"),
			mcp.Required(),
		),
	)
}

func buildListTool() mcp.Tool {
	return mcp.NewTool(
		"list_memories",
		mcp.WithDescription("Lists stored memories, newest first, with pagination."),
		mcp.WithNumber("page",
			mcp.Description("1-indexed page number (default 1)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of memories per page (default 50)"),
		),
	)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	limit := intArg(args, "limit", s.opts.SearchLimit)
	threshold := floatArg(args, "similarity_threshold", s.opts.SearchThreshold)

	results, err := s.store.Search(ctx, query, limit, threshold)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("content parameter is required")
	}
	force, _ := args["force"].(bool)
	metadata, err := metadataArg(args)
	if err != nil {
		return nil, err
	}

	res, err := s.store.Create(ctx, content, metadata, force)
	if err != nil {
		return errorResult(err)
	}
	if res.Conflicted() {
		return jsonResult(map[string]any{
			"status":           "conflict_detected",
			"message":          "Found similar existing memories. Use force=true to create anyway, or call update_memory to merge.",
			"similar_memories": res.Conflicts,
		})
	}
	return jsonResult(map[string]any{
		"status":     "stored",
		"id":         res.Memory.ID,
		"content":    res.Memory.Content,
		"created_at": res.Memory.CreatedAt,
	})
}

func (s *Server) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, ok := idArg(args)
	if !ok {
		return nil, fmt.Errorf("id parameter is required")
	}
	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("content parameter is required")
	}
	metadata, err := metadataArg(args)
	if err != nil {
		return nil, err
	}

	mem, err := s.store.Update(ctx, id, content, metadata)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"status":     "updated",
		"id":         mem.ID,
		"content":    mem.Content,
		"updated_at": mem.UpdatedAt,
	})
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, ok := idArg(args)
	if !ok {
		return nil, fmt.Errorf("id parameter is required")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]any{
		"status": "deleted",
		"id":     id,
	})
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	page := intArg(args, "page", 1)
	pageSize := intArg(args, "limit", 50)

	result, err := s.store.List(ctx, page, pageSize)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(result)
}

// errorResult converts expected domain conditions into structured error
// payloads instead of protocol failures, so clients can react to them.
func errorResult(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, embedder.ErrModelNotLoaded),
		errors.Is(err, embedder.ErrModelUnavailable):
		return jsonResult(map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
	default:
		return nil, err
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// idArg reads the id argument, accepting the float64 that JSON decoding
// produces for numbers.
func idArg(args map[string]any) (int64, bool) {
	switch v := args["id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func floatArg(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

func metadataArg(args map[string]any) (map[string]any, error) {
	raw, ok := args["metadata"]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		var metadata map[string]any
		if err := json.Unmarshal([]byte(v), &metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata JSON: %v", err)
		}
		return metadata, nil
	default:
		return nil, fmt.Errorf("metadata must be an object")
	}
}
