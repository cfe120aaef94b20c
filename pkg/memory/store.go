package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/harun/mnemo/pkg/memory/embedder"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

const (
	tracerName = "mnemo.memory"

	// Number of candidates the duplicate guard inspects before a create.
	duplicateCandidates = 5

	defaultDimension          = 384
	defaultDuplicateThreshold = 0.7
	defaultPageSize           = 50
)

// Memory is a stored note with its timestamps and optional metadata.
type Memory struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchResult is a memory that passed the similarity threshold.
type SearchResult struct {
	ID         int64          `json:"id"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SimilarMemory describes an existing record that blocked a create.
type SimilarMemory struct {
	ID         int64   `json:"id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// CreateResult is the outcome of Create: either a stored memory or the list
// of conflicting records that stopped it. A conflict is an alternate success,
// not an error.
type CreateResult struct {
	Memory    *Memory
	Conflicts []SimilarMemory
}

// Conflicted reports whether the duplicate guard refused the create.
func (r *CreateResult) Conflicted() bool {
	return r.Memory == nil
}

// Page is one page of the listing, newest first.
type Page struct {
	Memories   []Memory `json:"memories"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
}

// Stats summarizes the store for diagnostics.
type Stats struct {
	TotalMemories int    `json:"total_memories"`
	DatabaseBytes int64  `json:"database_bytes"`
	Model         string `json:"model"`
	Dimension     int    `json:"dimension"`
	ModelReady    bool   `json:"model_ready"`
}

// Config holds memory store configuration
type Config struct {
	DBPath             string
	Embedder           *embedder.Handle
	Logger             zerolog.Logger
	Dimension          int      // vector width of the vec table, default 384
	DuplicateThreshold *float64 // nil means the 0.7 default; an explicit 0 is honored
}

// Store owns the memories table and its paired vec_memories vector index.
type Store struct {
	db           *sql.DB
	embedder     *embedder.Handle
	logger       zerolog.Logger
	dbPath       string
	dim          int
	dupThreshold float64
}

// Open opens the database, enables WAL mode and migrates the schema.
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder handle is required")
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultDimension
	}
	dupThreshold := float64(defaultDuplicateThreshold)
	if cfg.DuplicateThreshold != nil {
		dupThreshold = *cfg.DuplicateThreshold
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:           db,
		embedder:     cfg.Embedder,
		logger:       cfg.Logger,
		dbPath:       cfg.DBPath,
		dim:          cfg.Dimension,
		dupThreshold: dupThreshold,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("db", cfg.DBPath).Int("dimension", s.dim).Msg("Memory store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(
			embedding float[%d]
		);
	`, s.dim)
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// embed generates the unit vector for content, outside any transaction.
func (s *Store) embed(ctx context.Context, content string) ([]float32, error) {
	start := time.Now()
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}
	observability.RecordEmbedding(time.Since(start))
	return vec, nil
}

// Create embeds content and inserts the record with its paired vector entry.
// Without force, it first searches existing content at the duplicate
// threshold and refuses the insert when anything matches. The check and the
// insert are not one atomic unit; see the package doc.
func (s *Store) Create(ctx context.Context, content string, metadata map[string]any, force bool) (*CreateResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.create",
		attribute.Bool("force", force),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	if content == "" {
		return nil, errors.New("content is required")
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordOperation("create", "error", time.Since(start))
		return nil, err
	}

	if !force {
		similar, err := s.searchVector(ctx, vec, duplicateCandidates, s.dupThreshold)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.RecordOperation("create", "error", time.Since(start))
			return nil, err
		}
		if len(similar) > 0 {
			conflicts := make([]SimilarMemory, len(similar))
			for i, m := range similar {
				conflicts[i] = SimilarMemory{ID: m.ID, Content: m.Content, Similarity: m.Similarity}
			}
			logger.Info().
				Int("conflicts", len(conflicts)).
				Float64("threshold", s.dupThreshold).
				Msg("Create refused by duplicate guard")
			observability.RecordOperation("create", "conflict", time.Since(start))
			return &CreateResult{Conflicts: conflicts}, nil
		}
	}

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	blob := embedder.EncodeVector(vec)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO memories (content, embedding, created_at, updated_at, metadata) VALUES (?, ?, ?, ?, ?)",
		content, blob, now.UnixNano(), now.UnixNano(), metaJSON,
	)
	if err != nil {
		observability.RecordOperation("create", "error", time.Since(start))
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO vec_memories (rowid, embedding) VALUES (?, ?)",
		id, blob,
	); err != nil {
		observability.RecordOperation("create", "error", time.Since(start))
		return nil, fmt.Errorf("failed to insert vector entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		observability.RecordOperation("create", "error", time.Since(start))
		return nil, fmt.Errorf("failed to commit create: %w", err)
	}

	logger.Info().Int64("id", id).Msg("Memory stored")
	observability.RecordOperation("create", "stored", time.Since(start))
	s.refreshEntriesGauge(ctx)

	return &CreateResult{Memory: &Memory{
		ID:        id,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}}, nil
}

// Update re-embeds content and replaces the record and its vector entry in
// one transaction. Returns ErrNotFound when the id does not exist.
func (s *Store) Update(ctx context.Context, id int64, content string, metadata map[string]any) (*Memory, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.update",
		attribute.Int64("id", id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	if content == "" {
		return nil, errors.New("content is required")
	}

	vec, err := s.embed(ctx, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordOperation("update", "error", time.Since(start))
		return nil, err
	}

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	blob := embedder.EncodeVector(vec)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var createdNS int64
	err = tx.QueryRowContext(ctx, "SELECT created_at FROM memories WHERE id = ?", id).Scan(&createdNS)
	if errors.Is(err, sql.ErrNoRows) {
		observability.RecordOperation("update", "not_found", time.Since(start))
		return nil, fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up memory: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE memories SET content = ?, embedding = ?, metadata = ?, updated_at = ? WHERE id = ?",
		content, blob, metaJSON, now.UnixNano(), id,
	); err != nil {
		observability.RecordOperation("update", "error", time.Since(start))
		return nil, fmt.Errorf("failed to update memory: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE vec_memories SET embedding = ? WHERE rowid = ?",
		blob, id,
	); err != nil {
		observability.RecordOperation("update", "error", time.Since(start))
		return nil, fmt.Errorf("failed to update vector entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		observability.RecordOperation("update", "error", time.Since(start))
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}

	logger.Info().Int64("id", id).Msg("Memory updated")
	observability.RecordOperation("update", "updated", time.Since(start))

	return &Memory{
		ID:        id,
		Content:   content,
		CreatedAt: time.Unix(0, createdNS).UTC(),
		UpdatedAt: now,
		Metadata:  metadata,
	}, nil
}

// Delete removes the record and its vector entry in one transaction.
// Returns ErrNotFound when the id does not exist.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.delete",
		attribute.Int64("id", id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM memories WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		observability.RecordOperation("delete", "not_found", time.Since(start))
		return fmt.Errorf("memory %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up memory: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_memories WHERE rowid = ?", id); err != nil {
		observability.RecordOperation("delete", "error", time.Since(start))
		return fmt.Errorf("failed to delete vector entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id); err != nil {
		observability.RecordOperation("delete", "error", time.Since(start))
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		observability.RecordOperation("delete", "error", time.Since(start))
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	logger.Info().Int64("id", id).Msg("Memory deleted")
	observability.RecordOperation("delete", "deleted", time.Since(start))
	s.refreshEntriesGauge(ctx)
	return nil
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return total, nil
}

// Stats reports store totals and embedding model provenance.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalMemories: total,
		Dimension:     s.dim,
		ModelReady:    s.embedder.Ready(),
	}
	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseBytes = info.Size()
	}
	if stats.ModelReady {
		if name, dim, err := s.embedder.Describe(ctx); err == nil {
			stats.Model = name
			stats.Dimension = dim
		}
	}
	return stats, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing memory store")
	return s.db.Close()
}

func (s *Store) refreshEntriesGauge(ctx context.Context) {
	if total, err := s.Count(ctx); err == nil {
		observability.SetMemoryEntries(total)
	}
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if metadata == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}
