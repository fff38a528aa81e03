package retriever

import (
	"context"
	"math"
	"testing"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/embed"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

var testDocs = []corpus.Document{
	{ID: "returns", Text: "You can return any item within 30 days for a full refund or exchange.", Label: corpus.ReturnAndExchange},
	{ID: "support", Text: "Our customer support team is available around the clock to help you.", Label: corpus.Support},
	{ID: "green", Text: "WebBizz is committed to sustainability with recyclable packaging.", Label: corpus.SafetyAndSustainability},
	{ID: "loyalty", Text: "Join the loyalty program to earn points on every purchase.", Label: corpus.Miscellaneous},
}

func checkInvariants(t *testing.T, results []RankedResult, topK int) {
	t.Helper()

	if len(results) > topK {
		t.Errorf("got %d results, want at most %d", len(results), topK)
	}
	for i, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("results[%d].Score = %f, outside [0,1]", i, r.Score)
		}
		if i > 0 && results[i-1].Score < r.Score {
			t.Errorf("results not sorted: %f before %f", results[i-1].Score, r.Score)
		}
	}
}

func TestFinalize(t *testing.T) {
	results := []RankedResult{
		{ID: "c", Score: 0.5},
		{ID: "b", Score: 1.7},
		{ID: "a", Score: 0.5},
		{ID: "d", Score: -0.3},
		{ID: "e", Score: math.NaN()},
	}

	got := Finalize(results, 3)

	want := []RankedResult{
		{ID: "b", Score: 1},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.5},
	}
	if len(got) != len(want) {
		t.Fatalf("Finalize() returned %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestScoreNormalization(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"distance 0", CosineDistanceScore(0), 1},
		{"distance 1", CosineDistanceScore(1), 0.5},
		{"distance 2", CosineDistanceScore(2), 0},
		{"distance overflow", CosineDistanceScore(2.5), 0},
		{"similarity 1", CosineSimilarityScore(1), 1},
		{"similarity 0", CosineSimilarityScore(0), 0.5},
		{"similarity -1", CosineSimilarityScore(-1), 0},
		{"equivalent", CosineSimilarityScore(0.3), CosineDistanceScore(0.7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-12 {
				t.Errorf("got %f, want %f", tt.got, tt.want)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	if err := ValidateRequest("q", 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRequest("", 1); !errors.IsValidation(err) {
		t.Errorf("empty query: expected validation error, got %v", err)
	}
	if err := ValidateRequest("q", 0); !errors.IsValidation(err) {
		t.Errorf("top_k 0: expected validation error, got %v", err)
	}
}

func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	e := embed.NewHashEmbedder(256)
	return map[string]Backend{
		"memory":  NewMemoryStore(e),
		"lexical": NewLexicalStore(),
		"hybrid":  NewHybridRetriever(NewMemoryStore(e), NewLexicalStore(), DefaultHybridConfig()),
	}
}

func TestBackends_EmptyIndex(t *testing.T) {
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			n, err := b.Count(context.Background())
			if err != nil || n != 0 {
				t.Errorf("Count() = %d, %v; want 0, nil", n, err)
			}

			_, err = b.Retrieve(context.Background(), "return policy", 3)
			if !errors.IsEmptyIndex(err) {
				t.Errorf("expected EMPTY_INDEX, got %v", err)
			}
		})
	}
}

func TestBackends_Retrieve(t *testing.T) {
	ctx := context.Background()

	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer b.Close()

			if err := b.Index(ctx, testDocs); err != nil {
				t.Fatalf("Index() error = %v", err)
			}
			n, err := b.Count(ctx)
			if err != nil || n != len(testDocs) {
				t.Fatalf("Count() = %d, %v; want %d", n, err, len(testDocs))
			}

			for _, topK := range []int{1, 2, 10} {
				results, err := b.Retrieve(ctx, "how do I return an item for a refund", topK)
				if err != nil {
					t.Fatalf("Retrieve() error = %v", err)
				}
				checkInvariants(t, results, topK)
				if len(results) == 0 || results[0].ID != "returns" {
					t.Errorf("topK=%d: expected 'returns' first, got %+v", topK, results)
				}
				if len(results) > 0 && results[0].Label != corpus.ReturnAndExchange {
					t.Errorf("label not carried through: %+v", results[0])
				}
			}

			if _, err := b.Retrieve(ctx, "", 3); !errors.IsValidation(err) {
				t.Errorf("empty query: expected validation error, got %v", err)
			}
			if _, err := b.Retrieve(ctx, "refund", 0); !errors.IsValidation(err) {
				t.Errorf("top_k 0: expected validation error, got %v", err)
			}
		})
	}
}

func TestBackends_ReindexReplaces(t *testing.T) {
	ctx := context.Background()

	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Index(ctx, testDocs); err != nil {
				t.Fatalf("Index() error = %v", err)
			}
			if err := b.Index(ctx, testDocs[:2]); err != nil {
				t.Fatalf("Index() error = %v", err)
			}
			n, _ := b.Count(ctx)
			if n != len(testDocs) {
				t.Errorf("Count() after reindex = %d, want %d", n, len(testDocs))
			}
		})
	}
}

func TestMemoryStore_Deterministic(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(embed.NewHashEmbedder(128))
	if err := m.Index(ctx, testDocs); err != nil {
		t.Fatal(err)
	}

	first, _ := m.Retrieve(ctx, "customer support", 4)
	second, _ := m.Retrieve(ctx, "customer support", 4)

	if len(first) != len(second) {
		t.Fatal("result length differs between identical queries")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("results[%d] differ: %+v vs %+v", i, first[i], second[i])
		}
	}
	// Dense retrieval ranks every document.
	if len(first) != 4 {
		t.Errorf("expected 4 results, got %d", len(first))
	}
}

func TestLexicalStore_NoOverlap(t *testing.T) {
	ctx := context.Background()
	l := NewLexicalStore()
	if err := l.Index(ctx, testDocs); err != nil {
		t.Fatal(err)
	}

	results, err := l.Retrieve(ctx, "xylophone", 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for an unknown term, got %+v", results)
	}
}

func TestLexicalStore_BM25(t *testing.T) {
	ctx := context.Background()
	l := NewLexicalStore()
	docs := []corpus.Document{
		{ID: "a", Text: "refund refund refund"},
		{ID: "b", Text: "refund policy for orders"},
		{ID: "c", Text: "shipping times"},
	}
	if err := l.Index(ctx, docs); err != nil {
		t.Fatal(err)
	}

	results, err := l.Retrieve(ctx, "refund", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matching documents, got %+v", results)
	}
	if results[0].ID != "a" {
		t.Errorf("higher term frequency should rank first, got %+v", results)
	}

	// Raw BM25 for "a": idf * tf*(k1+1) / (tf + k1*(1-b+b*len/avg)).
	n, df := 3.0, 2.0
	idf := math.Log((n-df+0.5)/(df+0.5) + 1)
	avg := (3.0 + 4.0 + 2.0) / 3
	tf := 3.0
	raw := idf * tf * (DefaultK1 + 1) / (tf + DefaultK1*(1-DefaultB+DefaultB*3/avg))
	if want := raw / (1 + raw); math.Abs(results[0].Score-want) > 1e-9 {
		t.Errorf("score = %f, want %f", results[0].Score, want)
	}
}

type staticRetriever struct {
	results []RankedResult
	err     error
}

func (s staticRetriever) Retrieve(_ context.Context, _ string, topK int) ([]RankedResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := append([]RankedResult(nil), s.results...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func TestHybridRetriever_Fusion(t *testing.T) {
	dense := staticRetriever{results: []RankedResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.1}}}
	sparse := staticRetriever{results: []RankedResult{{ID: "b", Score: 0.7}, {ID: "d", Score: 0.6}}}

	h := NewHybridRetriever(dense, sparse, DefaultHybridConfig())
	results, err := h.Retrieve(context.Background(), "q", 4)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	checkInvariants(t, results, 4)

	// b: 0.5/62 + 0.5/61 beats a: 0.5/61.
	wantOrder := []string{"b", "a", "d", "c"}
	for i, id := range wantOrder {
		if results[i].ID != id {
			t.Fatalf("results[%d] = %s, want %s (all: %+v)", i, results[i].ID, id, results)
		}
	}

	best := 1.0 / 61
	want := (0.5/62 + 0.5/61) / best
	if math.Abs(results[0].Score-want) > 1e-9 {
		t.Errorf("fused score = %f, want %f", results[0].Score, want)
	}
}

func TestHybridRetriever_TopInBoth(t *testing.T) {
	both := staticRetriever{results: []RankedResult{{ID: "x", Score: 0.2}}}
	h := NewHybridRetriever(both, both, DefaultHybridConfig())

	results, err := h.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || math.Abs(results[0].Score-1) > 1e-12 {
		t.Errorf("first in both components should score 1, got %+v", results)
	}
}

func TestHybridRetriever_ComponentError(t *testing.T) {
	failing := staticRetriever{err: errors.BackendUnavailableError("dense", nil)}
	h := NewHybridRetriever(failing, staticRetriever{}, DefaultHybridConfig())

	if _, err := h.Retrieve(context.Background(), "q", 3); !errors.IsBackendUnavailable(err) {
		t.Errorf("expected BACKEND_UNAVAILABLE, got %v", err)
	}
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	e := embed.NewHashEmbedder(32)

	tests := []struct {
		backend string
		want    string
	}{
		{"memory", "memory/hash-32"},
		{"lexical", "lexical/bm25"},
		{"hybrid", "hybrid(memory/hash-32+lexical/bm25)"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg.Backend.Type = tt.backend
			b, err := New(context.Background(), cfg, e)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := NameOf(b); got != tt.want {
				t.Errorf("NameOf() = %s, want %s", got, tt.want)
			}
		})
	}

	cfg.Backend.Type = "elastic"
	if _, err := New(context.Background(), cfg, e); !errors.IsValidation(err) {
		t.Errorf("expected validation error for unknown backend, got %v", err)
	}
}
