package lexical

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"
)

func TestBM25Ranking(t *testing.T) {
	docs := [][]string{
		{"upi", "payment", "fail", "error", "5003"},
		{"webhook", "signatur", "mismatch", "callback"},
		{"pinelab", "gateway", "rsa", "decrypt", "failur"},
	}
	idx := NewBM25(docs)

	hits := idx.TopK([]string{"upi", "error"}, 5)
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].Doc != 0 {
		t.Errorf("expected doc 0 first, got %d", hits[0].Doc)
	}
	for _, h := range hits {
		if h.Score <= 0 {
			t.Errorf("TopK returned non-positive score %v for doc %d", h.Score, h.Doc)
		}
	}
}

func TestBM25NoMatch(t *testing.T) {
	idx := NewBM25([][]string{{"card", "token"}})
	if hits := idx.TopK([]string{"kubernetes"}, 5); len(hits) != 0 {
		t.Errorf("expected no hits for unseen term, got %v", hits)
	}
}

func TestBM25EmptyCorpus(t *testing.T) {
	idx := NewBM25(nil)
	if hits := idx.TopK([]string{"anything"}, 5); len(hits) != 0 {
		t.Errorf("empty corpus must return no hits, got %v", hits)
	}
	if idx.VocabSize() != 0 {
		t.Errorf("empty corpus vocab size = %d", idx.VocabSize())
	}
}

func TestBM25TopKOrderingStable(t *testing.T) {
	// Two identical documents tie exactly; the lower index must come first.
	docs := [][]string{
		{"payment", "timeout"},
		{"payment", "timeout"},
	}
	idx := NewBM25(docs)
	hits := idx.TopK([]string{"timeout"}, 5)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Doc != 0 || hits[1].Doc != 1 {
		t.Errorf("tie-break not stable: %v", hits)
	}
	if math.Abs(hits[0].Score-hits[1].Score) > 1e-12 {
		t.Errorf("identical docs should tie: %v", hits)
	}
}

func TestBM25GobRoundTrip(t *testing.T) {
	idx := NewBM25([][]string{{"upi", "fail"}, {"card", "block"}})

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(idx); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded BM25
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	orig := idx.Scores([]string{"upi"})
	got := decoded.Scores([]string{"upi"})
	for i := range orig {
		if math.Abs(orig[i]-got[i]) > 1e-12 {
			t.Errorf("doc %d score changed across gob: %v vs %v", i, orig[i], got[i])
		}
	}
}
