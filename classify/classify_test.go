package classify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sherlockai/sherlock/llm"
)

// scriptedProvider answers every chat with a fixed string and counts calls.
type scriptedProvider struct {
	answer string
	fail   bool
	calls  atomic.Int64
}

func (p *scriptedProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls.Add(1)
	if p.fail {
		return nil, errors.New("model unavailable")
	}
	return &llm.ChatResponse{Content: p.answer}, nil
}

func (p *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func TestClassifyVerdicts(t *testing.T) {
	tests := []struct {
		answer string
		want   Complexity
	}{
		{"simple", Simple},
		{"Simple.", Simple},
		{"complex", Complex},
		{"This is a COMPLEX question", Complex},
		{"no idea", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			c, err := New(&scriptedProvider{answer: tt.answer}, "m", 16)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := c.Classify(context.Background(), "why do refunds fail?"); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyFailureDefaultsSimple(t *testing.T) {
	c, err := New(&scriptedProvider{fail: true}, "m", 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Classify(context.Background(), "anything"); got != Simple {
		t.Errorf("failure verdict = %s, want %s", got, Simple)
	}
}

func TestClassifyCaching(t *testing.T) {
	p := &scriptedProvider{answer: "complex"}
	c, err := New(p, "m", 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	c.Classify(ctx, "Why do refunds fail?")
	// Same query modulo case and whitespace must hit the cache.
	c.Classify(ctx, "  why do refunds fail?  ")
	c.Classify(ctx, "WHY DO REFUNDS FAIL?")

	if p.calls.Load() != 1 {
		t.Errorf("model called %d times, want 1", p.calls.Load())
	}
	if c.CacheLen() != 1 {
		t.Errorf("cache len = %d, want 1", c.CacheLen())
	}
}

func TestClassifyEmptyQuery(t *testing.T) {
	p := &scriptedProvider{answer: "complex"}
	c, err := New(p, "m", 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Classify(context.Background(), "   "); got != Simple {
		t.Errorf("blank query = %s, want %s", got, Simple)
	}
	if p.calls.Load() != 0 {
		t.Error("blank query must not reach the model")
	}
}

func TestClassifyCacheBounded(t *testing.T) {
	p := &scriptedProvider{answer: "simple"}
	c, err := New(p, "m", 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	c.Classify(ctx, "query one")
	c.Classify(ctx, "query two")
	c.Classify(ctx, "query three")

	if c.CacheLen() > 2 {
		t.Errorf("cache len = %d, want ≤ 2", c.CacheLen())
	}
}

func TestDistribution(t *testing.T) {
	p := &scriptedProvider{answer: "simple"}
	c, err := New(p, "m", 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	c.Classify(ctx, "one")
	c.Classify(ctx, "two")
	p.answer = "complex"
	c.Classify(ctx, "three")

	dist := c.Distribution()
	if dist[Simple] != 2 || dist[Complex] != 1 {
		t.Errorf("distribution = %v, want 2 simple / 1 complex", dist)
	}
}
