package embed

import (
	"container/list"
	"context"
	"sync"

	"github.com/ricesearch/rice-eval/internal/pkg/hash"
)

// CacheMetrics is the interface for recording cache metrics.
// This allows the cache to be decoupled from the metrics package.
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedEmbedder memoizes embeddings by text hash with LRU eviction.
// Repeated runs against the same corpus only pay for new texts.
type CachedEmbedder struct {
	next    Embedder
	maxSize int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	metrics CacheMetrics
}

type cacheEntry struct {
	key string
	vec []float32
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next with a cache of at most maxSize vectors.
func NewCachedEmbedder(next Embedder, maxSize int) *CachedEmbedder {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &CachedEmbedder{
		next:    next,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// SetMetrics sets the metrics recorder for this cache.
func (c *CachedEmbedder) SetMetrics(metrics CacheMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// Name implements Embedder.
func (c *CachedEmbedder) Name() string {
	return c.next.Name()
}

// Dimension implements Embedder.
func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

// Embed implements Embedder. Only cache misses reach the wrapped embedder,
// in a single call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)

	for i, text := range texts {
		if vec, ok := c.get(text); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		c.set(missTexts[j], vec)
	}

	return out, nil
}

func (c *CachedEmbedder) get(text string) ([]float32, bool) {
	key := hash.SHA256String(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordCacheMiss("embed")
		}
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.RecordCacheHit("embed")
	}
	c.order.MoveToFront(el)

	// Return a copy to prevent external mutation
	vec := el.Value.(*cacheEntry).vec
	cp := make([]float32, len(vec))
	copy(cp, vec)
	return cp, true
}

func (c *CachedEmbedder) set(text string, vec []float32) {
	key := hash.SHA256String(text)
	cp := make([]float32, len(vec))
	copy(cp, vec)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).vec = cp
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vec: cp})
}

// Size returns the current cache size.
func (c *CachedEmbedder) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
