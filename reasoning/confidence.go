package reasoning

import (
	"github.com/sherlockai/sherlock/classify"
	"github.com/sherlockai/sherlock/retrieval"
)

// Confidence adjustments per complexity class. Simple queries trust the
// single best hit; complex queries average the head of the ranking;
// unknown complexity is discounted.
const (
	simpleConfidenceBoost  = 1.2
	complexConfidenceBoost = 1.1
	unknownConfidenceCut   = 0.8

	complexTopN = 3

	multiMethodConfidenceBoost = 1.1
)

// Confidence scores a trusted candidate set in [0, 1]. An empty set is
// zero confidence regardless of complexity.
func Confidence(results []retrieval.Result, complexity classify.Complexity) float64 {
	if len(results) == 0 {
		return 0
	}

	top := results[0].FusedScore

	var score float64
	switch complexity {
	case classify.Simple:
		score = top * simpleConfidenceBoost
	case classify.Complex:
		n := complexTopN
		if len(results) < n {
			n = len(results)
		}
		var sum float64
		for _, r := range results[:n] {
			sum += r.FusedScore
		}
		score = (sum / float64(n)) * complexConfidenceBoost
	default:
		score = top * unknownConfidenceCut
	}

	// Agreement across retrieval methods is corroborating evidence.
	if len(results[0].Methods) >= 2 {
		score *= multiMethodConfidenceBoost
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
