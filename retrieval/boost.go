package retrieval

import (
	"strings"

	"github.com/sherlockai/sherlock/textutil"
)

// Boost constants. These multipliers are deliberate domain tuning; keep
// them named so reranking changes stay traceable.
const (
	boostExactTermHigh   = 10.0 // ≥80% of query's exact terms present
	boostExactTermStrong = 5.0  // ≥60%
	boostExactTermMid    = 2.0  // ≥40%
	boostExactTermLow    = 1.5  // ≥20%

	boostPerfectMatch  = 2.5
	boostMerchantMatch = 2.0
	boostGatewayMatch  = 1.5

	capPerfectMatch  = 1.0
	capMerchantMatch = 0.95
	capGatewayMatch  = 0.85

	boostExactTitle = 1.2

	// Per extra agreeing method: 1 + 0.1·(methods−1).
	boostPerExtraMethod = 0.1
)

// boost applies the reranking chain to one fused candidate: exact-term
// boost, merchant/gateway priority match, exact-title boost, multi-method
// agreement, then a final clamp to [0,1].
func (e *Engine) boost(r *Result, query string, queryTerms map[string]bool, queryMerchant, queryGateway string) {
	incidentText := r.Incident.EntityText()

	r.ExactTermBoost = exactTermMultiplier(queryTerms, textutil.ExactTerms(incidentText))
	r.FusedScore *= r.ExactTermBoost

	r.MatchType, r.PriorityBoost = priorityMatch(
		queryMerchant, queryGateway,
		textutil.ExtractMerchant(incidentText), textutil.ExtractGateway(incidentText))
	r.FusedScore *= r.PriorityBoost
	switch r.MatchType {
	case MatchPerfectMerchantGateway:
		if r.FusedScore > capPerfectMatch {
			r.FusedScore = capPerfectMatch
		}
	case MatchMerchantID:
		if r.FusedScore > capMerchantMatch {
			r.FusedScore = capMerchantMatch
		}
	case MatchPaymentGateway:
		if r.FusedScore > capGatewayMatch {
			r.FusedScore = capGatewayMatch
		}
	}

	r.TitleBoost = 1.0
	if isExactMatch(query, r) {
		r.IsExactMatch = true
		r.TitleBoost = boostExactTitle
		r.FusedScore *= boostExactTitle
	}

	r.MethodBoost = 1.0 + boostPerExtraMethod*float64(len(r.Methods)-1)
	r.FusedScore *= r.MethodBoost

	if r.FusedScore > 1 {
		r.FusedScore = 1
	} else if r.FusedScore < 0 {
		r.FusedScore = 0
	}
}

// exactTermMultiplier maps the share of the query's exact technical terms
// found in the incident to a step multiplier.
func exactTermMultiplier(queryTerms, incidentTerms map[string]bool) float64 {
	if len(queryTerms) == 0 {
		return 1.0
	}
	matched := 0
	for t := range queryTerms {
		if incidentTerms[t] {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(queryTerms))
	switch {
	case ratio >= 0.8:
		return boostExactTermHigh
	case ratio >= 0.6:
		return boostExactTermStrong
	case ratio >= 0.4:
		return boostExactTermMid
	case ratio >= 0.2:
		return boostExactTermLow
	default:
		return 1.0
	}
}

// priorityMatch classifies the merchant/gateway agreement between query
// and incident.
func priorityMatch(qMerchant, qGateway, iMerchant, iGateway string) (string, float64) {
	merchantHit := qMerchant != "" && qMerchant == iMerchant
	gatewayHit := qGateway != "" && qGateway == iGateway
	switch {
	case merchantHit && gatewayHit:
		return MatchPerfectMerchantGateway, boostPerfectMatch
	case merchantHit:
		return MatchMerchantID, boostMerchantMatch
	case gatewayHit:
		return MatchPaymentGateway, boostGatewayMatch
	default:
		return MatchSemantic, 1.0
	}
}

// isExactMatch reports whether the query is effectively the incident
// itself: equal title, heavy word overlap with the title, an exact tag
// hit, or a perfect merchant+gateway match.
func isExactMatch(query string, r *Result) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	title := strings.ToLower(strings.TrimSpace(r.Incident.Title))
	if q != "" && q == title {
		return true
	}

	qWords := strings.Fields(q)
	if len(qWords) > 0 {
		titleWords := make(map[string]bool)
		for _, w := range strings.Fields(title) {
			titleWords[w] = true
		}
		matched := 0
		for _, w := range qWords {
			if titleWords[w] {
				matched++
			}
		}
		if float64(matched)/float64(len(qWords)) >= 0.8 {
			return true
		}
	}

	for _, tag := range r.Incident.Tags {
		if strings.ToLower(strings.TrimSpace(tag)) == q {
			return true
		}
	}

	return r.MatchType == MatchPerfectMerchantGateway
}
