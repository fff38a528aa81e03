package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"

	"github.com/sashabaranov/go-openai"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// OpenAIConfig configures the OpenAI-compatible embedder. Pointing BaseURL at
// an Ollama server (http://localhost:11434/v1) uses its compatible endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dim       int // expected dimension; 0 = known default for Model
	BatchSize int
}

// OpenAIEmbedder embeds texts through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dim       int
	batchSize int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai embedder needs an api key or a base url")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Dim <= 0 {
		cfg.Dim = defaultDimension(cfg.Model)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dim:       cfg.Dim,
		batchSize: cfg.BatchSize,
	}, nil
}

func defaultDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "nomic-embed-text":
		return 768
	case "all-minilm":
		return 384
	default:
		return 1536
	}
}

// Name implements Embedder.
func (e *OpenAIEmbedder) Name() string {
	return "openai:" + e.model
}

// Dimension implements Embedder.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// Embed implements Embedder. Texts are sent in batches of BatchSize.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d texts", len(resp.Data), len(texts))
	}

	results := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.dim {
			return nil, fmt.Errorf("embedding has dimension %d, expected %d", len(data.Embedding), e.dim)
		}
		results[data.Index] = data.Embedding
	}

	return results, nil
}

// classifyError maps transport failures to BackendUnavailable. API errors
// (bad input, rate limits) and context errors are returned as they are.
func classifyError(err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return fmt.Errorf("embedding request failed: %w", err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if stderrors.As(err, &urlErr) || stderrors.As(err, &netErr) {
		return errors.BackendUnavailableError("embedding service", err)
	}

	return fmt.Errorf("embedding request failed: %w", err)
}
