// Package lexical implements the keyword rankers of the hybrid retriever:
// an Okapi BM25 index over the tokenized corpus and a TF-IDF vectorizer
// with cosine ranking. Both operate on raw scores; normalization into
// [0,1] is the retriever's job at fusion time.
package lexical

import (
	"math"
	"sort"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Hit is a document index with its raw ranker score.
type Hit struct {
	Doc   int
	Score float64
}

// BM25 is an Okapi BM25 index over a tokenized corpus. All fields are
// exported so the index round-trips through encoding/gob for the disk cache.
type BM25 struct {
	DocFreq   map[string]int   // term -> number of documents containing it
	TermFreqs []map[string]int // per-document term frequencies
	DocLens   []int
	AvgDocLen float64
	NumDocs   int
}

// NewBM25 builds the index from pre-tokenized documents. An empty corpus
// yields a valid index that scores everything at zero.
func NewBM25(docs [][]string) *BM25 {
	idx := &BM25{
		DocFreq:   make(map[string]int),
		TermFreqs: make([]map[string]int, len(docs)),
		DocLens:   make([]int, len(docs)),
		NumDocs:   len(docs),
	}

	totalLen := 0
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		idx.TermFreqs[i] = tf
		idx.DocLens[i] = len(doc)
		totalLen += len(doc)

		for term := range tf {
			idx.DocFreq[term]++
		}
	}
	if len(docs) > 0 {
		idx.AvgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// idf uses the Okapi formulation with the +1 shift so scores never go
// negative for very common terms.
func (idx *BM25) idf(term string) float64 {
	df := idx.DocFreq[term]
	if df == 0 {
		return 0
	}
	n := float64(idx.NumDocs)
	return math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
}

// Scores returns the raw BM25 score of every document against the query
// tokens, in corpus order.
func (idx *BM25) Scores(query []string) []float64 {
	scores := make([]float64, idx.NumDocs)
	if idx.NumDocs == 0 || len(query) == 0 {
		return scores
	}

	for _, term := range query {
		idf := idx.idf(term)
		if idf == 0 {
			continue
		}
		for doc, tf := range idx.TermFreqs {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.DocLens[doc])/idx.AvgDocLen
			scores[doc] += idf * freq * (bm25K1 + 1) / (freq + bm25K1*norm)
		}
	}
	return scores
}

// TopK returns up to k documents with positive BM25 score, best first.
// Ties break by ascending document index so ranking is stable.
func (idx *BM25) TopK(query []string, k int) []Hit {
	scores := idx.Scores(query)

	hits := make([]Hit, 0, k)
	for doc, s := range scores {
		if s > 0 {
			hits = append(hits, Hit{Doc: doc, Score: s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Doc < hits[j].Doc
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// VocabSize returns the number of distinct indexed terms.
func (idx *BM25) VocabSize() int {
	return len(idx.DocFreq)
}
