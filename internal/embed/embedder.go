// Package embed provides the text embedding providers used by the dense
// retrieval backends.
package embed

import (
	"context"
	"fmt"

	"github.com/ricesearch/rice-eval/internal/config"
)

// Embedder turns texts into dense vectors.
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every returned vector.
	Dimension() int

	// Name identifies the provider and model.
	Name() string
}

// New builds the embedder described by cfg, wrapped in a cache when
// cfg.CacheSize is positive.
func New(cfg config.EmbedConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch cfg.Provider {
	case "hash":
		e = NewHashEmbedder(cfg.Dim)
	case "openai":
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dim:       cfg.Dim,
			BatchSize: cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embed provider: %s", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%s returned %d embeddings for 1 text", e.Name(), len(vecs))
	}
	return vecs[0], nil
}
