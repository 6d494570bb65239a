package sherlock

import (
	"fmt"

	"github.com/sherlockai/sherlock/classify"
	"github.com/sherlockai/sherlock/corpus"
	"github.com/sherlockai/sherlock/retrieval"
)

// RAG strategy labels recorded in every response. The retrieval-backed
// path uses StrategyForComplexity instead of a fixed label.
const (
	StrategyExactIDLookup   = "exact_id_lookup"
	StrategyExactIDNotFound = "exact_id_not_found"
	StrategyDomainFilter    = "domain_filter"
	StrategyNoResults       = "no_relevant_results"
	StrategyLowConfidence   = "low_confidence_rejected"
	StrategyErrorFallback   = "error_fallback"
)

// StrategyForComplexity labels the successful retrieval-backed path,
// recording the complexity class and how many incidents backed the answer.
func StrategyForComplexity(complexity classify.Complexity, incidents int) string {
	return fmt.Sprintf("%s_query_with_%d_incidents", complexity, incidents)
}

// RetrievedIncident is an incident in a response together with its
// retrieval provenance.
type RetrievedIncident struct {
	corpus.Incident

	FusedScore    float64  `json:"fused_score"`
	SemanticScore float64  `json:"semantic_score,omitempty"`
	BM25Score     float64  `json:"bm25_score,omitempty"`
	TFIDFScore    float64  `json:"tfidf_score,omitempty"`
	Methods       []string `json:"search_methods,omitempty"`
	MatchType     string   `json:"match_type,omitempty"`
	IsExactMatch  bool     `json:"is_exact_match,omitempty"`
}

// Response is the engine's only output shape. Every query, including ones
// that fail internally, produces exactly one Response.
type Response struct {
	Query              string              `json:"query"`
	GeneratedAnswer    string              `json:"generated_answer"`
	RetrievedIncidents []RetrievedIncident `json:"retrieved_incidents"`
	Sources            []string            `json:"sources"`
	ConfidenceScore    float64             `json:"confidence_score"`
	QueryComplexity    classify.Complexity `json:"query_complexity"`
	ExecutionTimeMs    int64               `json:"execution_time_ms"`
	RAGStrategy        string              `json:"rag_strategy"`
	Timestamp          string              `json:"timestamp"`
}

// retrievedIncidents converts retriever results into the response shape,
// preserving order and provenance.
func retrievedIncidents(results []retrieval.Result) []RetrievedIncident {
	out := make([]RetrievedIncident, 0, len(results))
	for _, r := range results {
		out = append(out, RetrievedIncident{
			Incident:      r.Incident,
			FusedScore:    r.FusedScore,
			SemanticScore: r.SemanticScore,
			BM25Score:     r.BM25Score,
			TFIDFScore:    r.TFIDFScore,
			Methods:       r.Methods,
			MatchType:     r.MatchType,
			IsExactMatch:  r.IsExactMatch,
		})
	}
	return out
}
