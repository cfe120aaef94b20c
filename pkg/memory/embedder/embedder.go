package embedder

import (
	"context"
	"errors"
	"math"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
	Close() error
}

var (
	// ErrModelNotLoaded is returned when Embed is called before any load was initiated.
	ErrModelNotLoaded = errors.New("embedding model not loaded")
	// ErrModelUnavailable is returned when the embedding model failed to initialize.
	// The original load failure is attached as the wrapped cause.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	errZeroVector = errors.New("embedding has zero norm")
)

// Normalize scales v to unit L2 length in place and returns it.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, errZeroVector
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}
