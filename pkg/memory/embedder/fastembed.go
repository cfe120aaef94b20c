package embedder

import (
	"context"
	"fmt"

	fastembed "github.com/anush008/fastembed-go"
)

// fastembedModels maps the model names used in configuration to fastembed's
// identifiers and vector dimensions.
var fastembedModels = map[string]struct {
	model fastembed.EmbeddingModel
	dim   int
}{
	"all-MiniLM-L6-v2":  {fastembed.AllMiniLML6V2, 384},
	"bge-small-en-v1.5": {fastembed.BGESmallENV15, 384},
	"bge-base-en-v1.5":  {fastembed.BGEBaseENV15, 768},
}

// FastEmbedConfig configures the local ONNX embedding provider.
type FastEmbedConfig struct {
	Model    string // config-facing model name, default all-MiniLM-L6-v2
	CacheDir string // where model weights are downloaded and cached
}

// FastEmbedProvider runs a sentence-transformer model locally through
// fastembed. Construction downloads weights on first use and spins up an ONNX
// session, which takes seconds; callers go through Handle rather than using
// this directly.
type FastEmbedProvider struct {
	model *fastembed.FlagEmbedding
	name  string
	dim   int
}

// NewFastEmbedProvider loads the model synchronously.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	name := cfg.Model
	if name == "" {
		name = "all-MiniLM-L6-v2"
	}
	spec, ok := fastembedModels[name]
	if !ok {
		return nil, fmt.Errorf("unknown fastembed model %q", name)
	}

	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:    spec.model,
		CacheDir: cfg.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("load fastembed model %s: %w", name, err)
	}

	return &FastEmbedProvider{model: model, name: name, dim: spec.dim}, nil
}

func (p *FastEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.model.QueryEmbed(text)
}

func (p *FastEmbedProvider) Dimension() int { return p.dim }

func (p *FastEmbedProvider) Name() string { return p.name }

func (p *FastEmbedProvider) Close() error {
	if p.model != nil {
		p.model.Destroy()
	}
	return nil
}
