package lexical

import (
	"math"
	"sort"
	"strings"

	"github.com/sherlockai/sherlock/textutil"
)

const (
	// maxFeatures caps the vocabulary so the matrix stays bounded on
	// large corpora.
	maxFeatures = 5000

	// maxDocFreqRatio drops terms appearing in nearly every document;
	// they carry no signal.
	maxDocFreqRatio = 0.95

	// minCosine is the floor below which a TF-IDF match is noise.
	minCosine = 0.01
)

// SparseVec maps feature column -> weight.
type SparseVec map[int]float64

// TFIDF is a TF-IDF vectorizer plus the document matrix it was fitted on.
// Features are unigrams and bigrams of stop-word-filtered words. Exported
// fields gob-serialize with the rest of the corpus cache.
type TFIDF struct {
	Vocabulary map[string]int // feature -> column
	IDF        []float64      // per column
	Rows       []SparseVec    // L2-normalized document vectors, corpus order
}

// NewTFIDF fits a vectorizer on raw document texts and transforms them.
// An empty corpus yields a valid vectorizer with an empty vocabulary.
func NewTFIDF(docs []string) *TFIDF {
	n := len(docs)
	tokenized := make([][]string, n)
	df := make(map[string]int)

	for i, doc := range docs {
		grams := ngrams(doc)
		tokenized[i] = grams

		seen := make(map[string]bool, len(grams))
		for _, g := range grams {
			if !seen[g] {
				seen[g] = true
				df[g]++
			}
		}
	}

	// Drop too-frequent terms, then cap the vocabulary keeping the terms
	// with the highest document frequency (ties alphabetical) so the
	// selection is deterministic.
	type termDF struct {
		term string
		df   int
	}
	kept := make([]termDF, 0, len(df))
	for term, count := range df {
		if n >= 2 && float64(count)/float64(n) > maxDocFreqRatio {
			continue
		}
		kept = append(kept, termDF{term, count})
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].df != kept[j].df {
			return kept[i].df > kept[j].df
		}
		return kept[i].term < kept[j].term
	})
	if len(kept) > maxFeatures {
		kept = kept[:maxFeatures]
	}

	v := &TFIDF{
		Vocabulary: make(map[string]int, len(kept)),
		IDF:        make([]float64, len(kept)),
		Rows:       make([]SparseVec, n),
	}
	for col, td := range kept {
		v.Vocabulary[td.term] = col
		// Smoothed IDF; the +1 keeps vocabulary terms from vanishing
		// entirely when they appear in every document.
		v.IDF[col] = math.Log(float64(1+n)/float64(1+td.df)) + 1
	}

	for i, grams := range tokenized {
		v.Rows[i] = v.vectorize(grams)
	}
	return v
}

// Transform vectorizes a query with the fitted vocabulary.
func (v *TFIDF) Transform(text string) SparseVec {
	return v.vectorize(ngrams(text))
}

func (v *TFIDF) vectorize(grams []string) SparseVec {
	vec := make(SparseVec)
	for _, g := range grams {
		if col, ok := v.Vocabulary[g]; ok {
			vec[col] += v.IDF[col]
		}
	}

	// L2 normalize so dot products are cosines.
	var norm float64
	for _, w := range vec {
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for col := range vec {
			vec[col] /= norm
		}
	}
	return vec
}

// Scores returns the cosine similarity of the query against every
// document, in corpus order.
func (v *TFIDF) Scores(text string) []float64 {
	query := v.Transform(text)
	scores := make([]float64, len(v.Rows))
	if len(query) == 0 {
		return scores
	}
	for i, row := range v.Rows {
		scores[i] = dot(query, row)
	}
	return scores
}

// TopK returns up to k documents whose cosine clears the noise floor,
// best first, ties by ascending document index.
func (v *TFIDF) TopK(text string, k int) []Hit {
	scores := v.Scores(text)

	hits := make([]Hit, 0, k)
	for doc, s := range scores {
		if s > minCosine {
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

// NumFeatures returns the fitted vocabulary size.
func (v *TFIDF) NumFeatures() int {
	return len(v.Vocabulary)
}

func dot(a, b SparseVec) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for col, w := range a {
		sum += w * b[col]
	}
	return sum
}

// ngrams produces the unigram+bigram features of a text: lowercase,
// punctuation stripped, stop words removed, no stemming (the BM25 side
// stems; keeping the vectorizer unstemmed makes the two rankers
// complementary rather than redundant).
func ngrams(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var words []string
	for _, f := range strings.Fields(b.String()) {
		if len(f) < 2 || textutil.IsStopWord(f) {
			continue
		}
		words = append(words, f)
	}

	grams := make([]string, 0, 2*len(words))
	grams = append(grams, words...)
	for i := 0; i+1 < len(words); i++ {
		grams = append(grams, words[i]+" "+words[i+1])
	}
	return grams
}
