package embedder

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func TestHandle_EmbedBeforeLoad(t *testing.T) {
	h := NewHandle(func() (Provider, error) {
		return NewMockProvider(8), nil
	}, testLogger())

	_, err := h.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	assert.False(t, h.Ready())
}

func TestHandle_SynchronousLoad(t *testing.T) {
	h := NewHandle(func() (Provider, error) {
		return NewMockProvider(8), nil
	}, testLogger())

	h.Load(false)
	assert.True(t, h.Ready())

	vec, err := h.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 8)

	name, dim, err := h.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock", name)
	assert.Equal(t, 8, dim)
}

func TestHandle_BackgroundLoadBlocksEmbed(t *testing.T) {
	release := make(chan struct{})
	h := NewHandle(func() (Provider, error) {
		<-release
		return NewMockProvider(8), nil
	}, testLogger())

	h.Load(true)
	assert.False(t, h.Ready())

	done := make(chan error, 1)
	go func() {
		_, err := h.Embed(context.Background(), "hello")
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Embed returned before the model finished loading")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.True(t, h.Ready())
}

func TestHandle_LoadIsIdempotent(t *testing.T) {
	var loads int
	var mu sync.Mutex
	h := NewHandle(func() (Provider, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		return NewMockProvider(8), nil
	}, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Load(false)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, loads)
}

func TestHandle_FailedLoadIsTerminal(t *testing.T) {
	cause := errors.New("weights corrupted")
	h := NewHandle(func() (Provider, error) {
		return nil, cause
	}, testLogger())

	h.Load(false)
	assert.False(t, h.Ready())

	for i := 0; i < 3; i++ {
		_, err := h.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Contains(t, err.Error(), "weights corrupted")
	}

	_, _, err := h.Describe(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestHandle_ConcurrentCallersSeeSameOutcome(t *testing.T) {
	h := NewHandle(func() (Provider, error) {
		time.Sleep(20 * time.Millisecond)
		return NewMockProvider(16), nil
	}, testLogger())
	h.Load(true)

	const callers = 8
	results := make(chan []float32, callers)
	for i := 0; i < callers; i++ {
		go func() {
			vec, err := h.Embed(context.Background(), "same text")
			require.NoError(t, err)
			results <- vec
		}()
	}

	first := <-results
	for i := 1; i < callers; i++ {
		assert.Equal(t, first, <-results)
	}
}

func TestHandle_EmbedHonorsContext(t *testing.T) {
	h := NewHandle(func() (Provider, error) {
		time.Sleep(time.Hour)
		return NewMockProvider(8), nil
	}, testLogger())
	h.Load(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Embed(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type closeTrackingProvider struct {
	*MockProvider
	closed atomic.Bool
}

func (p *closeTrackingProvider) Close() error {
	p.closed.Store(true)
	return nil
}

func TestHandle_CloseWaitsForBackgroundLoad(t *testing.T) {
	release := make(chan struct{})
	provider := &closeTrackingProvider{MockProvider: NewMockProvider(8)}
	h := NewHandle(func() (Provider, error) {
		<-release
		return provider, nil
	}, testLogger())
	h.Load(true)

	done := make(chan error, 1)
	go func() {
		done <- h.Close()
	}()

	select {
	case <-done:
		t.Fatal("Close returned before the load settled")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.True(t, provider.closed.Load())
}

func TestHandle_CloseBeforeLoadIsNoop(t *testing.T) {
	h := NewHandle(func() (Provider, error) {
		return NewMockProvider(8), nil
	}, testLogger())

	require.NoError(t, h.Close())
}

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProvider(64)

	a, err := p.Embed(context.Background(), "The weather is sunny today")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "The weather is sunny today")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := p.Embed(context.Background(), "completely unrelated text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMockProvider_Normalized(t *testing.T) {
	p := NewMockProvider(64)
	vec, err := p.Embed(context.Background(), "some text to embed")
	require.NoError(t, err)

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockProvider_OverlapScoresHigher(t *testing.T) {
	p := NewMockProvider(256)
	ctx := context.Background()

	doc, err := p.Embed(ctx, "The weather is sunny today")
	require.NoError(t, err)
	query, err := p.Embed(ctx, "sunny weather")
	require.NoError(t, err)
	unrelated, err := p.Embed(ctx, "database replication protocols")
	require.NoError(t, err)

	assert.Greater(t, dot(doc, query), dot(doc, unrelated))
	assert.Greater(t, dot(doc, query), 0.5)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
