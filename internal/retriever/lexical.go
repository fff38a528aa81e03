package retriever

import (
	"context"
	"math"
	"sync"

	"github.com/ricesearch/rice-eval/internal/corpus"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// BM25 parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// LexicalStore ranks documents with Okapi BM25 over corpus.Tokenize tokens.
// Raw scores are unbounded and mapped to [0, 1) with s/(1+s). Documents
// sharing no term with the query are not returned.
type LexicalStore struct {
	k1, b float64

	mu       sync.RWMutex
	docs     []lexicalDoc
	byID     map[string]int
	docFreq  map[string]int
	totalLen int
}

type lexicalDoc struct {
	doc      corpus.Document
	termFreq map[string]int
	length   int
}

var _ Backend = (*LexicalStore)(nil)

// NewLexicalStore creates an empty BM25 store with the default parameters.
func NewLexicalStore() *LexicalStore {
	return &LexicalStore{
		k1:      DefaultK1,
		b:       DefaultB,
		byID:    make(map[string]int),
		docFreq: make(map[string]int),
	}
}

// Name identifies the backend in reports.
func (l *LexicalStore) Name() string {
	return "lexical/bm25"
}

// Index implements Indexer.
func (l *LexicalStore) Index(ctx context.Context, docs []corpus.Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		tokens := corpus.Tokenize(d.Text)
		entry := lexicalDoc{doc: d, termFreq: make(map[string]int), length: len(tokens)}
		for _, tok := range tokens {
			entry.termFreq[tok]++
		}

		if idx, ok := l.byID[d.ID]; ok {
			l.removeStats(l.docs[idx])
			l.docs[idx] = entry
		} else {
			l.byID[d.ID] = len(l.docs)
			l.docs = append(l.docs, entry)
		}
		l.addStats(entry)
	}

	return nil
}

func (l *LexicalStore) addStats(d lexicalDoc) {
	l.totalLen += d.length
	for term := range d.termFreq {
		l.docFreq[term]++
	}
}

func (l *LexicalStore) removeStats(d lexicalDoc) {
	l.totalLen -= d.length
	for term := range d.termFreq {
		if l.docFreq[term]--; l.docFreq[term] <= 0 {
			delete(l.docFreq, term)
		}
	}
}

// Count implements Counter.
func (l *LexicalStore) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs), nil
}

// Retrieve implements Retriever.
func (l *LexicalStore) Retrieve(ctx context.Context, query string, topK int) ([]RankedResult, error) {
	if err := ValidateRequest(query, topK); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.docs) == 0 {
		return nil, errors.EmptyIndexError(l.Name())
	}

	terms := uniqueTerms(corpus.Tokenize(query))
	n := float64(len(l.docs))
	avgLen := float64(l.totalLen) / n

	var results []RankedResult
	for _, d := range l.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var score float64
		for _, term := range terms {
			tf := float64(d.termFreq[term])
			if tf == 0 {
				continue
			}
			df := float64(l.docFreq[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			lengthNorm := 1 - l.b
			if avgLen > 0 {
				lengthNorm += l.b * float64(d.length) / avgLen
			}
			score += idf * tf * (l.k1 + 1) / (tf + l.k1*lengthNorm)
		}

		if score > 0 {
			results = append(results, RankedResult{
				ID:    d.doc.ID,
				Score: score / (1 + score),
				Label: d.doc.Label,
			})
		}
	}

	return Finalize(results, topK), nil
}

// Close implements io.Closer.
func (l *LexicalStore) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = nil
	l.byID = make(map[string]int)
	l.docFreq = make(map[string]int)
	l.totalLen = 0
	return nil
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
