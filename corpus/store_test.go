package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sherlockai/sherlock/textutil"
)

func testIncidents() []Incident {
	return []Incident{
		{
			ID:          "jsp-1046",
			Title:       "Pinelabs Online Gateway RSA Decryption Failure",
			Description: "merchant snapdeal_test transactions failing on pinelabs with INTERNAL_SERVER_ERROR",
			Resolution:  "rotated RSA keys and redeployed the gateway adapter",
			Tags:        []string{"pinelabs", "rsa", "gateway"},
		},
		{
			ID:          "JSP-1037",
			Title:       "UPI payment timeouts during peak hours",
			Description: "UPI transactions timing out at the PSP during evening peak",
			Resolution:  "raised PSP connection pool and added retries",
			Tags:        []string{"upi", "timeout"},
		},
		{
			ID:          "JSP-1052",
			Title:       "Webhook signature verification failing",
			Description: "callback signature mismatch for wallet refund webhooks",
			Resolution:  "fixed HMAC key rotation ordering",
			Tags:        []string{"webhook", "signature"},
		},
	}
}

func TestStoreRebuildAndLookup(t *testing.T) {
	s := New("")
	if err := s.Rebuild(testIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if s.Count() != 3 {
		t.Fatalf("count = %d, want 3", s.Count())
	}
	if !s.Ready() {
		t.Fatal("store not ready after rebuild")
	}

	// Lookup is case-insensitive and the stored ID is canonical upper-case.
	inc, ok := s.ByID("jsp-1046")
	if !ok {
		t.Fatal("ByID(jsp-1046) not found")
	}
	if inc.ID != "JSP-1046" {
		t.Errorf("stored ID = %q, want canonical JSP-1046", inc.ID)
	}
	if _, ok := s.ByID("JSP-9999"); ok {
		t.Error("ByID(JSP-9999) should not be found")
	}
}

func TestStoreRebuildSkipsEmpty(t *testing.T) {
	s := New("")
	incidents := append(testIncidents(), Incident{ID: "JSP-0000"})
	if err := s.Rebuild(incidents); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if s.Count() != 3 {
		t.Errorf("count = %d, want 3 (empty incident dropped)", s.Count())
	}
	if _, ok := s.ByID("JSP-0000"); ok {
		t.Error("incident without indexable text should not be stored")
	}
}

func TestStoreLexicalSearch(t *testing.T) {
	s := New("")
	if err := s.Rebuild(testIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	hits := s.BM25TopK(textutil.Tokenize("UPI payment timeout"), 3)
	if len(hits) == 0 {
		t.Fatal("expected BM25 hits")
	}
	if hits[0].Incident.ID != "JSP-1037" {
		t.Errorf("BM25 top hit = %s, want JSP-1037", hits[0].Incident.ID)
	}

	hits = s.TFIDFTopK("webhook signature mismatch", 3)
	if len(hits) == 0 {
		t.Fatal("expected TF-IDF hits")
	}
	if hits[0].Incident.ID != "JSP-1052" {
		t.Errorf("TF-IDF top hit = %s, want JSP-1052", hits[0].Incident.ID)
	}
}

func TestStorePersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	if err := s.Rebuild(testIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for _, name := range []string{bm25CacheFile, tfidfCacheFile, metadataCacheFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("cache file %s missing: %v", name, err)
		}
	}

	// A fresh store over the same dir hydrates the previous generation.
	s2 := New(dir)
	if s2.Count() != 3 {
		t.Fatalf("hydrated count = %d, want 3", s2.Count())
	}
	if !s2.Ready() {
		t.Fatal("hydrated store not ready")
	}
	if _, ok := s2.ByID("JSP-1037"); !ok {
		t.Error("hydrated store lost JSP-1037")
	}
	hits := s2.BM25TopK(textutil.Tokenize("pinelabs rsa"), 3)
	if len(hits) == 0 || hits[0].Incident.ID != "JSP-1046" {
		t.Errorf("hydrated BM25 search wrong: %v", hits)
	}
}

func TestStoreInconsistentCacheDiscarded(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	if err := s.Rebuild(testIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Drop one file of the generation; the load must discard everything.
	if err := os.Remove(filepath.Join(dir, metadataCacheFile)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	s2 := New(dir)
	if s2.Count() != 0 {
		t.Errorf("partial cache should hydrate nothing, got count %d", s2.Count())
	}
	if s2.Ready() {
		t.Error("partial cache should leave indices unavailable")
	}
}

func TestStoreCorruptCacheDiscarded(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	if err := s.Rebuild(testIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tfidfCacheFile), []byte("not gob"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	s2 := New(dir)
	if s2.Count() != 0 || s2.Ready() {
		t.Error("corrupt cache generation must be discarded entirely")
	}
}

func TestStoreSuggestions(t *testing.T) {
	s := New("")
	if err := s.Rebuild(testIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	got := s.Suggestions("upi", 5)
	if len(got) == 0 {
		t.Fatal("expected suggestions for 'upi'")
	}
	if got[0] != "UPI payment timeouts during peak hours" {
		t.Errorf("title suggestions come first, got %v", got)
	}

	if got := s.Suggestions("", 5); got != nil {
		t.Errorf("blank query should suggest nothing, got %v", got)
	}
	if got := s.Suggestions("upi", 1); len(got) != 1 {
		t.Errorf("max must cap suggestions, got %v", got)
	}
}

func TestStoreStats(t *testing.T) {
	s := New("")
	stats := s.Stats()
	if stats.BM25Available || stats.TFIDFAvailable || stats.CorpusSize != 0 {
		t.Errorf("empty store stats wrong: %+v", stats)
	}

	if err := s.Rebuild(testIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	stats = s.Stats()
	if !stats.BM25Available || !stats.TFIDFAvailable {
		t.Errorf("indices should be available: %+v", stats)
	}
	if stats.CorpusSize != 3 || stats.BM25VocabSize == 0 || stats.TFIDFFeatures == 0 {
		t.Errorf("stats sizes wrong: %+v", stats)
	}
}
