package embedder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Factory constructs the configured embedding provider. It is invoked exactly
// once per handle, typically taking seconds for local models.
type Factory func() (Provider, error)

// Handle wraps a Provider behind a lazy, thread-safe load. The load is a
// one-way transition unloaded -> loading -> ready|failed; once terminal the
// state never reverts, and a failed load permanently fails every Embed call
// with the original cause.
type Handle struct {
	factory Factory
	logger  zerolog.Logger

	loadOnce sync.Once
	done     chan struct{}

	mu       sync.RWMutex
	started  bool
	provider Provider
	loadErr  error
}

// NewHandle creates an unloaded handle around the provider factory.
func NewHandle(factory Factory, logger zerolog.Logger) *Handle {
	return &Handle{
		factory: factory,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Load begins loading the provider. With background=true the load runs on its
// own goroutine and Load returns immediately; otherwise Load blocks until the
// load reaches a terminal state. Calling Load more than once is a no-op.
func (h *Handle) Load(background bool) {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()

	h.loadOnce.Do(func() {
		if background {
			go h.load()
			return
		}
		h.load()
	})

	if !background {
		<-h.done
	}
}

func (h *Handle) load() {
	start := time.Now()
	provider, err := h.factory()

	h.mu.Lock()
	h.provider = provider
	h.loadErr = err
	h.mu.Unlock()
	close(h.done)

	if err != nil {
		h.logger.Error().Err(err).Msg("Embedding model failed to load")
		return
	}
	h.logger.Info().
		Str("model", provider.Name()).
		Int("dimension", provider.Dimension()).
		Dur("duration", time.Since(start)).
		Msg("Embedding model loaded")
}

// wait blocks until the load reaches a terminal state or ctx is cancelled,
// then returns the provider or the terminal error.
func (h *Handle) wait(ctx context.Context) (Provider, error) {
	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()
	if !started {
		return nil, ErrModelNotLoaded
	}

	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.loadErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, h.loadErr)
	}
	return h.provider, nil
}

// Embed converts text to a unit-length vector. It blocks until the model has
// finished loading (or failed).
func (h *Handle) Embed(ctx context.Context, text string) ([]float32, error) {
	provider, err := h.wait(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != provider.Dimension() {
		return nil, fmt.Errorf("embed: provider returned %d dimensions, want %d", len(vec), provider.Dimension())
	}
	return Normalize(vec)
}

// Ready reports whether the model finished loading without error. Non-blocking.
func (h *Handle) Ready() bool {
	select {
	case <-h.done:
	default:
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadErr == nil
}

// Describe blocks until the model is ready and returns its identifier and
// vector dimension.
func (h *Handle) Describe(ctx context.Context) (string, int, error) {
	provider, err := h.wait(ctx)
	if err != nil {
		return "", 0, err
	}
	return provider.Name(), provider.Dimension(), nil
}

// Close releases the underlying provider. A load still in flight is waited
// for first, so a provider that finishes loading is always destroyed.
func (h *Handle) Close() error {
	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()
	if !started {
		return nil
	}

	<-h.done

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.provider != nil {
		return h.provider.Close()
	}
	return nil
}
