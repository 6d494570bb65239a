// Package reasoning covers the post-retrieval half of the pipeline: the
// relevance gate that decides whether candidates are trustworthy, context
// assembly, grounded answer generation, and confidence scoring.
package reasoning

import (
	"log/slog"

	"github.com/sherlockai/sherlock/retrieval"
	"github.com/sherlockai/sherlock/textutil"
)

// Gate reasons, recorded in logs and consumed by tests.
const (
	ReasonHighHybrid       = "high_hybrid_confidence"
	ReasonHighSemantic     = "high_semantic_relevance"
	ReasonModerateSemantic = "moderate_semantic_relevance"
	ReasonHybridSearch     = "hybrid_search_confidence"
	ReasonInsufficient     = "insufficient_semantic_overlap"
)

// Composite weights and thresholds for the semantic relevance check.
const (
	weightDomain = 0.5
	weightEntity = 0.3
	weightIntent = 0.2

	// hybridOverride trusts any candidate whose fused score clears this,
	// protecting exact keyword matches the composite would underrate.
	hybridOverride = 0.8

	thresholdHigh     = 0.6
	thresholdModerate = 0.3
	thresholdHybrid   = 0.1
	topScoreFloor     = 0.5

	intentMismatchAlign = 0.3
)

// Verdict is the gate's decision on a candidate set.
type Verdict struct {
	Trusted   bool
	Reason    string
	Composite float64
}

// Validate decides whether the retrieved candidates are trustworthy for
// the query. The composite check prevents dense similarity alone from
// surfacing superficially adjacent incidents from a different payment
// sub-domain (wallet vs card); the hybrid override protects exact keyword
// matches.
func Validate(query string, results []retrieval.Result) Verdict {
	if len(results) == 0 {
		return Verdict{Trusted: false, Reason: ReasonInsufficient}
	}

	for _, r := range results {
		if r.FusedScore >= hybridOverride {
			return Verdict{Trusted: true, Reason: ReasonHighHybrid, Composite: composite(query, r)}
		}
	}

	var best float64
	for _, r := range results {
		if c := composite(query, r); c > best {
			best = c
		}
	}

	topScore := results[0].FusedScore

	slog.Debug("reasoning: relevance gate",
		"composite", best, "top_fused", topScore, "candidates", len(results))

	switch {
	case best >= thresholdHigh:
		return Verdict{Trusted: true, Reason: ReasonHighSemantic, Composite: best}
	case best >= thresholdModerate:
		return Verdict{Trusted: true, Reason: ReasonModerateSemantic, Composite: best}
	case topScore >= topScoreFloor && best >= thresholdHybrid:
		return Verdict{Trusted: true, Reason: ReasonHybridSearch, Composite: best}
	default:
		return Verdict{Trusted: false, Reason: ReasonInsufficient, Composite: best}
	}
}

// composite scores one candidate's semantic relevance to the query.
func composite(query string, r retrieval.Result) float64 {
	incidentText := r.Incident.EntityText()

	domainScore := textutil.DomainCompatibility(
		textutil.ExtractDomain(query), textutil.ExtractDomain(incidentText))

	queryEntities := textutil.Entities(query)
	incidentEntities := textutil.Entities(incidentText)
	overlap := 0
	for e := range queryEntities {
		if incidentEntities[e] {
			overlap++
		}
	}
	denom := len(queryEntities)
	if denom < 1 {
		denom = 1
	}
	entityScore := float64(overlap) / float64(denom)

	intentScore := intentMismatchAlign
	if textutil.ExtractIntent(query) == textutil.ExtractIntent(incidentText) {
		intentScore = 1.0
	}

	return weightDomain*domainScore + weightEntity*entityScore + weightIntent*intentScore
}
