// Package embedder converts text into fixed-dimension unit vectors.
//
// Invariants:
// - Vectors returned by Handle.Embed are L2-normalized.
// - Model loading is a one-way transition; a failed load fails every
//   subsequent Embed with the original cause.
// - EncodeVector/DecodeVector round-trip exactly.
//
// Usage:
//
//	h := embedder.NewHandle(func() (embedder.Provider, error) {
//		return embedder.NewFastEmbedProvider(embedder.FastEmbedConfig{})
//	}, logger)
//	h.Load(true)
//	vec, _ := h.Embed(ctx, "some text")
//	_ = vec
package embedder
