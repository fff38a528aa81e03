package retriever

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/embed"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// MemoryStore is a dense retriever holding document embeddings in memory.
// Search is brute force cosine over every document, which is exact and fast
// enough for evaluation corpora.
type MemoryStore struct {
	embedder embed.Embedder

	mu      sync.RWMutex
	entries []memoryEntry
	byID    map[string]int
}

type memoryEntry struct {
	doc  corpus.Document
	vec  []float32
	norm float64
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory dense store.
func NewMemoryStore(embedder embed.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		byID:     make(map[string]int),
	}
}

// Name identifies the backend in reports.
func (m *MemoryStore) Name() string {
	return "memory/" + m.embedder.Name()
}

// Index embeds docs and stores them.
func (m *MemoryStore) Index(ctx context.Context, docs []corpus.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range docs {
		entry := memoryEntry{doc: d, vec: vecs[i], norm: vectorNorm(vecs[i])}
		if idx, ok := m.byID[d.ID]; ok {
			m.entries[idx] = entry
			continue
		}
		m.byID[d.ID] = len(m.entries)
		m.entries = append(m.entries, entry)
	}

	return nil
}

// Count implements Counter.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Retrieve implements Retriever.
func (m *MemoryStore) Retrieve(ctx context.Context, query string, topK int) ([]RankedResult, error) {
	if err := ValidateRequest(query, topK); err != nil {
		return nil, err
	}

	m.mu.RLock()
	empty := len(m.entries) == 0
	m.mu.RUnlock()
	if empty {
		return nil, errors.EmptyIndexError(m.Name())
	}

	qvec, err := embed.EmbedOne(ctx, m.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qnorm := vectorNorm(qvec)

	m.mu.RLock()
	results := make([]RankedResult, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, RankedResult{
			ID:    e.doc.ID,
			Score: CosineDistanceScore(cosineDistance(qvec, e.vec, qnorm, e.norm)),
			Label: e.doc.Label,
		})
	}
	m.mu.RUnlock()

	return Finalize(results, topK), nil
}

// Close implements io.Closer.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.byID = make(map[string]int)
	return nil
}

// cosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from
// everything.
func cosineDistance(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 || len(a) != len(b) {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(normA*normB)
}

func vectorNorm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
