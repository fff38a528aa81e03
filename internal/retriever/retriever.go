// Package retriever defines the retrieval backend contract the evaluation
// harness runs against, and the backends that implement it.
//
// Every backend returns results through Finalize, so callers can rely on:
// at most topK results, scores in [0, 1], ordered best first with ties broken
// by document ID.
package retriever

import (
	"context"
	"io"
	"sort"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// RankedResult is one retrieved document.
type RankedResult struct {
	ID    string          `json:"id"`
	Score float64         `json:"score"`
	Label corpus.Category `json:"label,omitempty"`
}

// Retriever returns the topK documents most relevant to query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RankedResult, error)
}

// Indexer loads documents into a backend. Indexing a document ID that is
// already present replaces it.
type Indexer interface {
	Index(ctx context.Context, docs []corpus.Document) error
}

// Counter reports how many documents a backend holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Backend is a retriever that can be loaded, counted and released.
type Backend interface {
	Retriever
	Indexer
	Counter
	io.Closer
}

// ValidateRequest checks the arguments shared by every Retrieve call.
func ValidateRequest(query string, topK int) error {
	if query == "" {
		return errors.ValidationError("query must not be empty")
	}
	if topK < 1 {
		return errors.ValidationError("top_k must be at least 1")
	}
	return nil
}

// Finalize clamps scores to [0, 1], sorts by descending score (ties by ID)
// and truncates to topK. It sorts results in place.
func Finalize(results []RankedResult, topK int) []RankedResult {
	for i := range results {
		results[i].Score = clamp01(results[i].Score)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// CosineDistanceScore maps a cosine distance in [0, 2] to a score in [0, 1].
func CosineDistanceScore(d float64) float64 {
	return clamp01((2 - d) / 2)
}

// CosineSimilarityScore maps a cosine similarity in [-1, 1] to a score in
// [0, 1]. It equals CosineDistanceScore(1 - s).
func CosineSimilarityScore(s float64) float64 {
	return clamp01((1 + s) / 2)
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
