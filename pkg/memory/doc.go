// Package memory persists free-text notes with their vector embeddings and
// retrieves them by semantic similarity.
//
// Invariants:
// - Every memory row has exactly one vec_memories row with the same id and
//   the embedding of its current content; the pair is written in one
//   transaction.
// - Embedding inference never runs inside a storage transaction.
// - Duplicate detection is a best-effort check-then-act: two near-identical
//   creates racing each other can both land. The store serves a single
//   operator, so this window is accepted.
//
// Usage:
//
//	store, _ := memory.Open(memory.Config{DBPath: "/data/memories.db", Embedder: handle})
//	defer store.Close()
//	res, _ := store.Create(ctx, "note", nil, false)
//	_ = res
package memory
