// Package classify labels queries by complexity so the orchestrator can
// pick retrieval parameters and a prompt template. Decisions come from a
// chat model and are memoized in a bounded LRU.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sherlockai/sherlock/llm"
)

// Complexity is the classifier's verdict on a query.
type Complexity string

const (
	Simple  Complexity = "simple"
	Complex Complexity = "complex"
	Unknown Complexity = "unknown"
)

const classifyPrompt = `Classify this payment-support query as "simple" or "complex".

simple: asks about one specific incident, error, or merchant issue.
complex: asks about patterns, root causes, comparisons, or prevention across incidents.

Query: %q

Answer with exactly one word: simple or complex.`

// Classifier labels queries, caching verdicts by lowercased trimmed text.
type Classifier struct {
	provider llm.Provider
	model    string
	cache    *lru.Cache[string, Complexity]
}

// New creates a classifier with a bounded decision cache. cacheSize must
// be positive.
func New(provider llm.Provider, model string, cacheSize int) (*Classifier, error) {
	cache, err := lru.New[string, Complexity](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Classifier{provider: provider, model: model, cache: cache}, nil
}

// Classify returns the complexity of a query. Model failures default to
// Simple: narrower retrieval is the safer wrong answer.
func (c *Classifier) Classify(ctx context.Context, query string) Complexity {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return Simple
	}
	if v, ok := c.cache.Get(key); ok {
		return v
	}

	verdict := c.ask(ctx, query)
	c.cache.Add(key, verdict)
	return verdict
}

func (c *Classifier) ask(ctx context.Context, query string) Complexity {
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Model: c.model,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(classifyPrompt, query)},
		},
		Temperature: 0,
		MaxTokens:   10,
	})
	if err != nil {
		slog.Warn("classify: chat failed, defaulting to simple", "error", err)
		return Simple
	}

	answer := strings.ToLower(resp.Content)
	switch {
	case strings.Contains(answer, "simple"):
		return Simple
	case strings.Contains(answer, "complex"):
		return Complex
	default:
		return Unknown
	}
}

// CacheLen returns the number of cached decisions.
func (c *Classifier) CacheLen() int {
	return c.cache.Len()
}

// Distribution counts cached decisions per complexity, for metrics.
func (c *Classifier) Distribution() map[Complexity]int {
	dist := make(map[Complexity]int, 3)
	for _, key := range c.cache.Keys() {
		if v, ok := c.cache.Peek(key); ok {
			dist[v]++
		}
	}
	return dist
}
