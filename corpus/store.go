package corpus

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sherlockai/sherlock/lexical"
	"github.com/sherlockai/sherlock/textutil"
)

// Hit pairs an incident with a raw ranker score.
type Hit struct {
	Incident Incident
	Score    float64
}

// IndexStats describes the current state of the lexical indices.
type IndexStats struct {
	BM25Available  bool `json:"bm25_available"`
	TFIDFAvailable bool `json:"tfidf_available"`
	CorpusSize     int  `json:"corpus_size"`
	BM25VocabSize  int  `json:"bm25_vocab_size,omitempty"`
	TFIDFFeatures  int  `json:"tfidf_features,omitempty"`
}

// Store is the corpus of incidents plus the BM25 and TF-IDF indices built
// over it. Reads are lock-free relative to each other; Rebuild is the
// single writer and swaps the {incidents, BM25, TF-IDF} triple atomically
// so a concurrent reader never observes a mixed generation.
type Store struct {
	cacheDir string

	mu        sync.RWMutex
	incidents []Incident
	byID      map[string]int
	bm25      *lexical.BM25
	tfidf     *lexical.TFIDF
}

// New creates a store rooted at cacheDir and tries to hydrate the previous
// generation from disk. Any cache inconsistency is logged and the store
// starts empty (semantic-only degraded mode) rather than failing.
func New(cacheDir string) *Store {
	s := &Store{
		cacheDir: cacheDir,
		byID:     make(map[string]int),
	}

	if cacheDir == "" {
		return s
	}
	if err := s.loadCaches(); err != nil {
		slog.Warn("corpus: cache load failed, starting with empty indices",
			"cache_dir", cacheDir, "error", err)
	} else if len(s.incidents) > 0 {
		slog.Info("corpus: indices loaded from cache",
			"cache_dir", cacheDir, "corpus_size", len(s.incidents))
	}
	return s
}

// ByID returns the incident with the given identifier. Matching is
// case-insensitive; the stored record keeps its canonical upper-case ID.
func (s *Store) ByID(id string) (Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[strings.ToUpper(id)]
	if !ok {
		return Incident{}, false
	}
	return s.incidents[i], true
}

// All returns the incidents in canonical corpus order. The returned slice
// is shared; callers must not mutate it.
func (s *Store) All() []Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incidents
}

// Count returns the corpus size.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

// Ready reports whether the lexical indices are built.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm25 != nil && s.tfidf != nil
}

// Rebuild replaces the corpus and both lexical indices in one generation,
// then persists the triple to disk. Incidents with empty searchable text
// are dropped; IDs are canonicalized to upper-case.
func (s *Store) Rebuild(incidents []Incident) error {
	kept := make([]Incident, 0, len(incidents))
	tokenized := make([][]string, 0, len(incidents))
	raw := make([]string, 0, len(incidents))

	for _, inc := range incidents {
		text := inc.SearchableText()
		tokens := textutil.Tokenize(text)
		if len(tokens) == 0 {
			slog.Warn("corpus: skipping incident with no indexable text", "id", inc.ID)
			continue
		}
		inc.ID = strings.ToUpper(inc.ID)
		kept = append(kept, inc)
		tokenized = append(tokenized, tokens)
		raw = append(raw, text)
	}

	bm25 := lexical.NewBM25(tokenized)
	tfidf := lexical.NewTFIDF(raw)

	byID := make(map[string]int, len(kept))
	for i, inc := range kept {
		byID[inc.ID] = i
	}

	s.mu.Lock()
	s.incidents = kept
	s.byID = byID
	s.bm25 = bm25
	s.tfidf = tfidf
	s.mu.Unlock()

	if s.cacheDir == "" {
		return nil
	}
	if err := s.saveCaches(kept, bm25, tfidf); err != nil {
		return fmt.Errorf("persisting corpus caches: %w", err)
	}

	slog.Info("corpus: indices rebuilt",
		"corpus_size", len(kept),
		"bm25_vocab", bm25.VocabSize(),
		"tfidf_features", tfidf.NumFeatures())
	return nil
}

// BM25TopK ranks the corpus against pre-tokenized query terms. Raw Okapi
// scores; only positive scores are returned.
func (s *Store) BM25TopK(queryTokens []string, k int) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.bm25 == nil || len(s.incidents) == 0 {
		return nil
	}
	return s.toHits(s.bm25.TopK(queryTokens, k))
}

// TFIDFTopK ranks the corpus against a raw query string. Raw cosines
// above the index's noise floor.
func (s *Store) TFIDFTopK(query string, k int) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tfidf == nil || len(s.incidents) == 0 {
		return nil
	}
	return s.toHits(s.tfidf.TopK(query, k))
}

// toHits maps document indices back to incidents. Caller holds mu.
func (s *Store) toHits(hits []lexical.Hit) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Doc < 0 || h.Doc >= len(s.incidents) {
			continue
		}
		out = append(out, Hit{Incident: s.incidents[h.Doc], Score: h.Score})
	}
	return out
}

// Stats reports index availability and sizes.
func (s *Store) Stats() IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := IndexStats{
		BM25Available:  s.bm25 != nil,
		TFIDFAvailable: s.tfidf != nil,
		CorpusSize:     len(s.incidents),
	}
	if s.bm25 != nil {
		stats.BM25VocabSize = s.bm25.VocabSize()
	}
	if s.tfidf != nil {
		stats.TFIDFFeatures = s.tfidf.NumFeatures()
	}
	return stats
}

// Suggestions returns up to max titles and tags containing the query,
// for type-ahead on the search surface.
func (s *Store) Suggestions(query string, max int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(strings.TrimSpace(query))
	if lower == "" || max <= 0 {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(v string) bool {
		if v == "" || seen[v] {
			return len(out) < max
		}
		seen[v] = true
		out = append(out, v)
		return len(out) < max
	}

	for _, inc := range s.incidents {
		if strings.Contains(strings.ToLower(inc.Title), lower) {
			if !add(inc.Title) {
				return out
			}
		}
	}
	for _, inc := range s.incidents {
		for _, tag := range inc.Tags {
			if strings.Contains(strings.ToLower(tag), lower) {
				if !add(tag) {
					return out
				}
			}
		}
	}
	return out
}
