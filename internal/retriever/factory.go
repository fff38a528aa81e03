package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/embed"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/qdrant"
)

// New creates the backend selected by cfg.Backend.Type. Dense backends embed
// with embedder. A Qdrant backend is health checked so an unreachable server
// fails here rather than on the first query.
func New(ctx context.Context, cfg *config.Config, embedder embed.Embedder) (Backend, error) {
	switch strings.ToLower(cfg.Backend.Type) {
	case "memory", "":
		return NewMemoryStore(embedder), nil

	case "lexical":
		return NewLexicalStore(), nil

	case "hybrid":
		return NewHybridRetriever(NewMemoryStore(embedder), NewLexicalStore(), HybridConfig{
			K:            DefaultRRFK,
			DenseWeight:  cfg.Backend.DenseWeight,
			SparseWeight: cfg.Backend.SparseWeight,
			Candidates:   DefaultCandidates,
		}), nil

	case "qdrant":
		client, err := qdrant.NewClient(qdrant.ClientConfigFrom(cfg.Qdrant))
		if err != nil {
			return nil, err
		}
		if err := client.HealthCheck(ctx); err != nil {
			client.Close()
			if !errors.IsBackendUnavailable(err) {
				err = errors.BackendUnavailableError("qdrant", err)
			}
			return nil, err
		}
		return NewQdrantStore(client, embedder, cfg.Backend.Collection, cfg.Backend.IndexBatch), nil

	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown backend type: %s", cfg.Backend.Type))
	}
}
