// Package retrieval implements the hybrid retriever: dense vector, BM25
// and TF-IDF sub-searches run concurrently, their scores are min-max
// normalized and fused, then domain-specific boosts rerank the merged
// candidates.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sherlockai/sherlock/corpus"
	"github.com/sherlockai/sherlock/textutil"
	"github.com/sherlockai/sherlock/vecstore"
)

// Search method names, recorded in result provenance.
const (
	MethodSemantic = "semantic"
	MethodBM25     = "bm25"
	MethodTFIDF    = "tfidf"
)

// Match types in descending boost priority.
const (
	MatchPerfectMerchantGateway = "PERFECT_MERCHANT_GATEWAY_MATCH"
	MatchMerchantID             = "MERCHANT_ID_MATCH"
	MatchPaymentGateway         = "PAYMENT_GATEWAY_MATCH"
	MatchSemantic               = "SEMANTIC_MATCH"
)

// Fusion weights. Min-max within each method is intentional: dense cosine
// and BM25 operate on incomparable absolute scales.
const (
	weightSemantic = 0.6
	weightBM25     = 0.3
	weightTFIDF    = 0.1

	// denseFloor discards dense matches below this cosine before fusion.
	denseFloor = 0.1
)

// Result is one fused candidate with full scoring provenance.
type Result struct {
	Incident corpus.Incident `json:"incident"`

	FusedScore    float64 `json:"fused_score"`
	SemanticScore float64 `json:"semantic_score"`
	BM25Score     float64 `json:"bm25_score"`
	TFIDFScore    float64 `json:"tfidf_score"`

	Methods      []string `json:"search_methods"`
	MatchType    string   `json:"match_type"`
	IsExactMatch bool     `json:"is_exact_match"`

	ExactTermBoost float64 `json:"exact_term_boost"`
	PriorityBoost  float64 `json:"priority_boost"`
	TitleBoost     float64 `json:"title_boost"`
	MethodBoost    float64 `json:"method_boost"`
}

// Embedder is the slice of the embedding client the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine performs hybrid retrieval over the corpus and the vector index.
type Engine struct {
	corpus   *corpus.Store
	embedder Embedder
	index    vecstore.Index
}

// New creates a retrieval engine. index may be nil to run lexical-only.
func New(c *corpus.Store, embedder Embedder, index vecstore.Index) *Engine {
	return &Engine{corpus: c, embedder: embedder, index: index}
}

// Search runs the full hybrid pipeline: concurrent sub-searches, per-method
// normalization, weighted fusion, exact-term / priority / title / agreement
// boosts, then minScore filtering and truncation to topK. A failed
// sub-search contributes an empty set; Search itself never fails.
func (e *Engine) Search(ctx context.Context, query string, topK int, minScore float64) []Result {
	if topK <= 0 {
		return nil
	}
	start := time.Now()
	fetchK := topK * 2

	type subResult struct {
		method string
		hits   []scored
	}

	semCh := make(chan subResult, 1)
	bm25Ch := make(chan subResult, 1)
	tfidfCh := make(chan subResult, 1)

	go func() {
		semCh <- subResult{MethodSemantic, e.semanticSearch(ctx, query, fetchK)}
	}()
	go func() {
		tokens := textutil.Tokenize(query)
		hits := e.corpus.BM25TopK(tokens, fetchK)
		bm25Ch <- subResult{MethodBM25, toScored(hits)}
	}()
	go func() {
		hits := e.corpus.TFIDFTopK(query, fetchK)
		tfidfCh <- subResult{MethodTFIDF, toScored(hits)}
	}()

	sem := <-semCh
	bm25 := <-bm25Ch
	tfidf := <-tfidfCh

	slog.Debug("retrieval: sub-searches complete",
		"semantic", len(sem.hits), "bm25", len(bm25.hits), "tfidf", len(tfidf.hits),
		"elapsed", time.Since(start).Round(time.Millisecond))

	normalize(sem.hits)
	normalize(bm25.hits)
	normalize(tfidf.hits)

	merged := e.fuse(sem.hits, bm25.hits, tfidf.hits)

	// Min-max sends each method's weakest hit to 0; a candidate whose every
	// contribution landed there carries no signal and must not survive a
	// zero minScore.
	kept := merged[:0]
	for _, r := range merged {
		if r.SemanticScore > 0 || r.BM25Score > 0 || r.TFIDFScore > 0 {
			kept = append(kept, r)
		}
	}
	merged = kept
	if len(merged) == 0 {
		return nil
	}

	queryTerms := textutil.ExactTerms(query)
	queryMerchant := textutil.ExtractMerchant(query)
	queryGateway := textutil.ExtractGateway(query)

	for i := range merged {
		e.boost(&merged[i], query, queryTerms, queryMerchant, queryGateway)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].FusedScore != merged[j].FusedScore {
			return merged[i].FusedScore > merged[j].FusedScore
		}
		if len(merged[i].Methods) != len(merged[j].Methods) {
			return len(merged[i].Methods) > len(merged[j].Methods)
		}
		return merged[i].Incident.ID < merged[j].Incident.ID
	})

	out := merged[:0]
	for _, r := range merged {
		if r.FusedScore >= minScore {
			out = append(out, r)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}

	slog.Debug("retrieval: hybrid search done",
		"candidates", len(merged), "returned", len(out),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return out
}

// scored is a sub-search hit before fusion.
type scored struct {
	incident corpus.Incident
	score    float64
}

func toScored(hits []corpus.Hit) []scored {
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{incident: h.Incident, score: h.Score}
	}
	return out
}

// semanticSearch embeds the query and runs the KNN index, dropping matches
// below the dense floor. Failures degrade to an empty set.
func (e *Engine) semanticSearch(ctx context.Context, query string, k int) []scored {
	if e.embedder == nil || e.index == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("retrieval: query embedding failed", "error", err)
		return nil
	}
	matches, err := e.index.Query(ctx, vec, k, nil)
	if err != nil {
		slog.Warn("retrieval: vector search failed", "error", err)
		return nil
	}
	var out []scored
	for _, m := range matches {
		if m.Score < denseFloor {
			continue
		}
		inc := m.Incident
		// Prefer the corpus record when available; the index payload is the
		// fallback for semantic-only degraded mode.
		if full, ok := e.corpus.ByID(m.ID); ok {
			inc = full
		}
		out = append(out, scored{incident: inc, score: m.Score})
	}
	return out
}

// normalize rescales scores to [0,1] with min-max. A set in which every
// score is equal normalizes to all 1.0.
func normalize(hits []scored) {
	if len(hits) == 0 {
		return
	}
	lo, hi := hits[0].score, hits[0].score
	for _, h := range hits[1:] {
		if h.score < lo {
			lo = h.score
		}
		if h.score > hi {
			hi = h.score
		}
	}
	if hi == lo {
		for i := range hits {
			hits[i].score = 1.0
		}
		return
	}
	for i := range hits {
		hits[i].score = (hits[i].score - lo) / (hi - lo)
	}
}

// fuse groups the normalized sub-search hits by incident id and computes
// the weighted fused score.
func (e *Engine) fuse(sem, bm25, tfidf []scored) []Result {
	byID := make(map[string]*Result)
	order := []string{}

	add := func(hits []scored, method string, weight float64) {
		for _, h := range hits {
			r, ok := byID[h.incident.ID]
			if !ok {
				r = &Result{Incident: h.incident, MatchType: MatchSemantic}
				byID[h.incident.ID] = r
				order = append(order, h.incident.ID)
			}
			switch method {
			case MethodSemantic:
				r.SemanticScore = h.score
			case MethodBM25:
				r.BM25Score = h.score
			case MethodTFIDF:
				r.TFIDFScore = h.score
			}
			r.Methods = append(r.Methods, method)
			r.FusedScore += weight * h.score
		}
	}

	add(sem, MethodSemantic, weightSemantic)
	add(bm25, MethodBM25, weightBM25)
	add(tfidf, MethodTFIDF, weightTFIDF)

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}
