package embedder

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiDimensions maps OpenAI embedding models to their vector sizes.
var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey string
	Model  string // default text-embedding-3-small
}

// OpenAIProvider generates embeddings through the OpenAI embeddings endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAIProvider validates the configuration and builds the API client.
// No network call happens until the first Embed.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding provider requires an API key")
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dim, ok := openaiDimensions[model]
	if !ok {
		return nil, fmt.Errorf("unknown openai embedding model %q", model)
	}

	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  model,
		dim:    dim,
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, x := range resp.Data[0].Embedding {
		out[i] = float32(x)
	}
	return out, nil
}

func (p *OpenAIProvider) Dimension() int { return p.dim }

func (p *OpenAIProvider) Name() string { return p.model }

func (p *OpenAIProvider) Close() error { return nil }
