package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/harun/mnemo/pkg/memory/embedder"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Search embeds the query and returns up to limit memories whose similarity
// to it is at least threshold, best match first. A limit of zero or less
// yields an empty result without touching the model.
func (s *Store) Search(ctx context.Context, query string, limit int, threshold float64) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.search",
		attribute.Int("limit", limit),
		attribute.Float64("threshold", threshold),
	)
	defer span.End()

	start := time.Now()

	if limit <= 0 {
		return []SearchResult{}, nil
	}
	if query == "" {
		return nil, errors.New("query is required")
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordOperation("search", "error", time.Since(start))
		return nil, err
	}

	results, err := s.searchVector(ctx, vec, limit, threshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordOperation("search", "error", time.Since(start))
		return nil, err
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	observability.RecordMemorySearch(time.Since(start))
	observability.RecordOperation("search", "ok", time.Since(start))
	return results, nil
}

// searchVector runs the KNN query against vec_memories and hydrates the
// matching records. It over-fetches so that threshold filtering still fills
// the requested limit, and skips rowids whose record vanished between the
// index scan and the hydration read.
func (s *Store) searchVector(ctx context.Context, vec []float32, limit int, threshold float64) ([]SearchResult, error) {
	blob := embedder.EncodeVector(vec)

	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM vec_memories
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, limit*2)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id         int64
		similarity float64
	}
	var candidates []candidate
	for rows.Next() {
		var id int64
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		// Euclidean distance between unit vectors maps exactly onto cosine
		// similarity: sim = 1 - d^2/2.
		similarity := 1 - (distance*distance)/2
		if similarity < threshold {
			continue
		}
		candidates = append(candidates, candidate{id: id, similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vector rows: %w", err)
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if len(results) >= limit {
			break
		}
		mem, err := s.Get(ctx, c.id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			ID:         mem.ID,
			Content:    mem.Content,
			Similarity: math.Round(c.similarity*10000) / 10000,
			CreatedAt:  mem.CreatedAt,
			UpdatedAt:  mem.UpdatedAt,
			Metadata:   mem.Metadata,
		})
	}
	return results, nil
}

// Get returns a single memory by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Memory, error) {
	var (
		content   string
		createdNS int64
		updatedNS int64
		rawMeta   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT content, created_at, updated_at, metadata FROM memories WHERE id = ?", id,
	).Scan(&content, &createdNS, &updatedNS, &rawMeta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory: %w", err)
	}

	metadata, err := unmarshalMetadata(rawMeta)
	if err != nil {
		return nil, err
	}
	return &Memory{
		ID:        id,
		Content:   content,
		CreatedAt: time.Unix(0, createdNS).UTC(),
		UpdatedAt: time.Unix(0, updatedNS).UTC(),
		Metadata:  metadata,
	}, nil
}

// List returns one page of memories, newest first. Pages are 1-indexed; a
// page past the end yields an empty list with the same envelope.
func (s *Store) List(ctx context.Context, page, pageSize int) (*Page, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.list",
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)
	defer span.End()

	start := time.Now()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	total, err := s.Count(ctx)
	if err != nil {
		observability.RecordOperation("list", "error", time.Since(start))
		return nil, err
	}

	offset := (page - 1) * pageSize
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, created_at, updated_at, metadata
		FROM memories
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, pageSize, offset)
	if err != nil {
		observability.RecordOperation("list", "error", time.Since(start))
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	memories := make([]Memory, 0, pageSize)
	for rows.Next() {
		var (
			m         Memory
			createdNS int64
			updatedNS int64
			rawMeta   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Content, &createdNS, &updatedNS, &rawMeta); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdNS).UTC()
		m.UpdatedAt = time.Unix(0, updatedNS).UTC()
		if m.Metadata, err = unmarshalMetadata(rawMeta); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory rows: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	observability.RecordOperation("list", "ok", time.Since(start))
	return &Page{
		Memories:   memories,
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
	}, nil
}
