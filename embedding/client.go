// Package embedding wraps an LLM provider's embedding endpoint with a
// TTL'd cache and bounded concurrency for batch work.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sherlockai/sherlock/kvcache"
	"github.com/sherlockai/sherlock/llm"
)

// Stats counts cache behavior since process start.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// Client embeds texts through an LLM provider, memoizing vectors in a
// key-value cache keyed by model and text.
type Client struct {
	provider    llm.Provider
	cache       kvcache.Cache
	model       string
	dim         int
	ttl         time.Duration
	concurrency int

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// New creates an embedding client. cache may be kvcache.Noop{} to run
// without memoization. dim is the expected vector dimension; it is used
// to size zero-vector fallbacks for failed batch items.
func New(provider llm.Provider, cache kvcache.Cache, model string, dim int, ttl time.Duration, concurrency int) *Client {
	if cache == nil {
		cache = kvcache.Noop{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		provider:    provider,
		cache:       cache,
		model:       model,
		dim:         dim,
		ttl:         ttl,
		concurrency: concurrency,
	}
}

// Dim returns the expected vector dimension.
func (c *Client) Dim() int { return c.dim }

// cacheKey derives a stable key from the model and the exact text, so a
// model change never serves stale vectors.
func (c *Client) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "emb:" + hex.EncodeToString(h.Sum(nil))
}

// Embed returns the vector for a single text, consulting the cache first.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		// Cache trouble must not block embedding; degrade to the provider.
		slog.Warn("embedding: cache get failed", "error", err)
	} else if ok {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil && len(vec) == c.dim {
			c.hits.Add(1)
			return vec, nil
		}
		slog.Warn("embedding: discarding malformed cache entry", "key", key)
	}
	c.misses.Add(1)

	vecs, err := c.provider.Embed(ctx, []string{text})
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		c.errors.Add(1)
		return nil, fmt.Errorf("provider returned %d vectors for 1 text", len(vecs))
	}
	vec := vecs[0]

	if data, err := json.Marshal(vec); err == nil {
		if err := c.cache.SetEx(ctx, key, data, c.ttl); err != nil {
			slog.Warn("embedding: cache set failed", "error", err)
		}
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently with the client's concurrency
// limit. A failed item degrades to a zero vector rather than failing the
// whole batch; index i of the result always corresponds to texts[i].
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := c.Embed(ctx, text)
			if err != nil {
				slog.Warn("embedding: batch item failed, using zero vector",
					"index", i, "error", err)
				vec = make([]float32, c.dim)
			}
			mu.Lock()
			out[i] = vec
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; zero vectors stand in for failures.
	g.Wait()
	return out
}

// Stats reports cache hit/miss/error counts.
func (c *Client) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
}
