package retriever

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-eval/internal/corpus"
)

const (
	// DefaultRRFK is the RRF smoothing constant.
	// Higher values reduce the impact of rank position differences.
	DefaultRRFK = 60

	// DefaultCandidates is how many results each component contributes
	// before fusion, when topK is smaller.
	DefaultCandidates = 50
)

// HybridConfig configures Reciprocal Rank Fusion.
type HybridConfig struct {
	// K is the smoothing constant (default: 60).
	K int

	// DenseWeight is the weight of the dense component.
	DenseWeight float64

	// SparseWeight is the weight of the lexical component.
	SparseWeight float64

	// Candidates is the per-component candidate depth (default: 50).
	Candidates int
}

// DefaultHybridConfig returns equal weights with k=60.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		K:            DefaultRRFK,
		DenseWeight:  0.5,
		SparseWeight: 0.5,
		Candidates:   DefaultCandidates,
	}
}

// HybridRetriever fuses a dense and a lexical retriever with weighted RRF:
//
//	fused = denseWeight/(k + denseRank) + sparseWeight/(k + sparseRank)
//
// A component that did not return a document contributes nothing. Fused
// scores are divided by the best attainable value (rank 1 in both), so a
// document ranked first by both components scores 1.
type HybridRetriever struct {
	dense  Retriever
	sparse Retriever
	cfg    HybridConfig
}

var _ Backend = (*HybridRetriever)(nil)

// NewHybridRetriever creates a hybrid retriever. Zero config fields take
// their defaults.
func NewHybridRetriever(dense, sparse Retriever, cfg HybridConfig) *HybridRetriever {
	if cfg.K <= 0 {
		cfg.K = DefaultRRFK
	}
	if cfg.DenseWeight == 0 && cfg.SparseWeight == 0 {
		cfg.DenseWeight, cfg.SparseWeight = 0.5, 0.5
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = DefaultCandidates
	}
	return &HybridRetriever{dense: dense, sparse: sparse, cfg: cfg}
}

// Name identifies the backend in reports.
func (h *HybridRetriever) Name() string {
	return fmt.Sprintf("hybrid(%s+%s)", NameOf(h.dense), NameOf(h.sparse))
}

// NameOf returns the backend name of r, or its type when it has none.
func NameOf(r Retriever) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", r)
}

// Index indexes docs into every component that is an Indexer.
func (h *HybridRetriever) Index(ctx context.Context, docs []corpus.Document) error {
	for _, r := range []Retriever{h.dense, h.sparse} {
		if idx, ok := r.(Indexer); ok {
			if err := idx.Index(ctx, docs); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count returns the smallest component count, so an empty component
// surfaces as an empty index.
func (h *HybridRetriever) Count(ctx context.Context) (int, error) {
	count := -1
	for _, r := range []Retriever{h.dense, h.sparse} {
		c, ok := r.(Counter)
		if !ok {
			continue
		}
		n, err := c.Count(ctx)
		if err != nil {
			return 0, err
		}
		if count < 0 || n < count {
			count = n
		}
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Retrieve implements Retriever. Both components are queried concurrently.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RankedResult, error) {
	if err := ValidateRequest(query, topK); err != nil {
		return nil, err
	}

	depth := h.cfg.Candidates
	if topK > depth {
		depth = topK
	}

	var denseResults, sparseResults []RankedResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		denseResults, err = h.dense.Retrieve(gctx, query, depth)
		return err
	})
	g.Go(func() error {
		var err error
		sparseResults, err = h.sparse.Retrieve(gctx, query, depth)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Finalize(h.fuse(denseResults, sparseResults), topK), nil
}

func (h *HybridRetriever) fuse(dense, sparse []RankedResult) []RankedResult {
	k := float64(h.cfg.K)
	best := (h.cfg.DenseWeight + h.cfg.SparseWeight) / (k + 1)

	fused := make(map[string]*RankedResult, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))

	add := func(results []RankedResult, weight float64) {
		for rank, r := range results {
			entry, ok := fused[r.ID]
			if !ok {
				entry = &RankedResult{ID: r.ID, Label: r.Label}
				fused[r.ID] = entry
				order = append(order, r.ID)
			}
			entry.Score += weight / (k + float64(rank+1))
		}
	}
	add(dense, h.cfg.DenseWeight)
	add(sparse, h.cfg.SparseWeight)

	results := make([]RankedResult, 0, len(order))
	for _, id := range order {
		r := *fused[id]
		if best > 0 {
			r.Score /= best
		}
		results = append(results, r)
	}
	return results
}

// Close closes every component that is an io.Closer.
func (h *HybridRetriever) Close() error {
	var errs []error
	for _, r := range []Retriever{h.dense, h.sparse} {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}
