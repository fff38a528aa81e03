package retriever

import (
	"context"
	"fmt"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/embed"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/qdrant"
)

// QdrantStore is a dense retriever backed by a Qdrant collection with cosine
// distance. It owns the client and closes it on Close.
type QdrantStore struct {
	client     *qdrant.Client
	embedder   embed.Embedder
	collection string
	batchSize  int
}

var _ Backend = (*QdrantStore)(nil)

// NewQdrantStore creates a store over collection (without the client's prefix).
func NewQdrantStore(client *qdrant.Client, embedder embed.Embedder, collection string, batchSize int) *QdrantStore {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &QdrantStore{
		client:     client,
		embedder:   embedder,
		collection: collection,
		batchSize:  batchSize,
	}
}

// Name identifies the backend in reports.
func (q *QdrantStore) Name() string {
	return "qdrant/" + q.embedder.Name()
}

// Reset drops and recreates the collection, sized for the embedder.
func (q *QdrantStore) Reset(ctx context.Context) error {
	return q.client.RecreateCollection(ctx, qdrant.DefaultCollectionConfig(q.collection, q.embedder.Dimension()))
}

// Index embeds docs and upserts them, creating the collection if needed.
func (q *QdrantStore) Index(ctx context.Context, docs []corpus.Document) error {
	if len(docs) == 0 {
		return nil
	}

	if err := q.client.CreateCollection(ctx, qdrant.DefaultCollectionConfig(q.collection, q.embedder.Dimension())); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	vecs, err := q.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	points := make([]qdrant.Point, len(docs))
	for i, d := range docs {
		points[i] = qdrant.Point{
			Vector: vecs[i],
			Payload: qdrant.PointPayload{
				DocID: d.ID,
				Text:  d.Text,
				Label: d.Label.String(),
			},
		}
	}

	return q.client.UpsertPointsBatch(ctx, q.collection, points, q.batchSize)
}

// Count implements Counter. A missing collection counts as empty.
func (q *QdrantStore) Count(ctx context.Context) (int, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	n, err := q.client.CountPoints(ctx, q.collection)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Retrieve implements Retriever.
func (q *QdrantStore) Retrieve(ctx context.Context, query string, topK int) ([]RankedResult, error) {
	if err := ValidateRequest(query, topK); err != nil {
		return nil, err
	}

	qvec, err := embed.EmbedOne(ctx, q.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := q.client.Search(ctx, q.collection, qdrant.SearchRequest{
		Vector:      qvec,
		Limit:       uint64(topK),
		WithPayload: true,
	})
	if err != nil {
		return nil, err
	}

	results := make([]RankedResult, 0, len(hits))
	for _, h := range hits {
		id := h.Payload.DocID
		if id == "" {
			return nil, errors.InternalError(fmt.Sprintf("point %s has no doc_id payload", h.ID), nil)
		}
		results = append(results, RankedResult{
			ID:    id,
			Score: CosineSimilarityScore(float64(h.Score)),
			Label: corpus.Category(h.Payload.Label),
		})
	}

	return Finalize(results, topK), nil
}

// Close implements io.Closer.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}
