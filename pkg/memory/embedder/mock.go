package embedder

import (
	"context"
	"hash/fnv"
	"strings"
)

// MockProvider is a deterministic, dependency-free provider for tests and
// offline development. Each lowercased token is hashed onto a vector
// component, so identical texts embed identically and texts sharing tokens
// score high cosine similarity. Not a real semantic model.
type MockProvider struct {
	dim int
}

// NewMockProvider creates a mock provider with the given dimension.
func NewMockProvider(dimension int) *MockProvider {
	return &MockProvider{dim: dimension}
}

func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:'\"()")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%p.dim] += 1
	}
	if v, err := Normalize(vec); err == nil {
		return v, nil
	}
	// All-punctuation input hashes to nothing; give it a stable direction.
	vec[0] = 1
	return vec, nil
}

func (p *MockProvider) Dimension() int { return p.dim }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Close() error { return nil }
