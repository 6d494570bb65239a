package corpus

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sherlockai/sherlock/lexical"
)

// Cache file names. The three files form one logical generation: they are
// written together and a load that cannot reconcile all three discards
// the whole set.
const (
	bm25CacheFile     = "bm25_index.gob"
	tfidfCacheFile    = "tfidf_index.gob"
	metadataCacheFile = "corpus_metadata.gob"
)

// saveCaches persists the index triple. Each file goes through a temp
// file plus atomic rename so a reader never sees a torn write.
func (s *Store) saveCaches(incidents []Incident, bm25 *lexical.BM25, tfidf *lexical.TFIDF) error {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	if err := writeGob(filepath.Join(s.cacheDir, bm25CacheFile), bm25); err != nil {
		return fmt.Errorf("writing bm25 cache: %w", err)
	}
	if err := writeGob(filepath.Join(s.cacheDir, tfidfCacheFile), tfidf); err != nil {
		return fmt.Errorf("writing tfidf cache: %w", err)
	}
	if err := writeGob(filepath.Join(s.cacheDir, metadataCacheFile), incidents); err != nil {
		return fmt.Errorf("writing metadata cache: %w", err)
	}
	return nil
}

// loadCaches hydrates the triple from disk. Any missing file, decode
// error, or document-count mismatch across the three invalidates the
// whole generation.
func (s *Store) loadCaches() error {
	var (
		bm25      lexical.BM25
		tfidf     lexical.TFIDF
		incidents []Incident
	)

	if err := readGob(filepath.Join(s.cacheDir, bm25CacheFile), &bm25); err != nil {
		if os.IsNotExist(err) {
			return nil // no previous generation; not an error
		}
		return fmt.Errorf("reading bm25 cache: %w", err)
	}
	if err := readGob(filepath.Join(s.cacheDir, tfidfCacheFile), &tfidf); err != nil {
		return fmt.Errorf("reading tfidf cache: %w", err)
	}
	if err := readGob(filepath.Join(s.cacheDir, metadataCacheFile), &incidents); err != nil {
		return fmt.Errorf("reading metadata cache: %w", err)
	}

	if bm25.NumDocs != len(incidents) || len(tfidf.Rows) != len(incidents) {
		return fmt.Errorf("cache generation inconsistent: bm25=%d tfidf=%d metadata=%d",
			bm25.NumDocs, len(tfidf.Rows), len(incidents))
	}

	byID := make(map[string]int, len(incidents))
	for i, inc := range incidents {
		byID[inc.ID] = i
	}

	s.mu.Lock()
	s.incidents = incidents
	s.byID = byID
	s.bm25 = &bm25
	s.tfidf = &tfidf
	s.mu.Unlock()
	return nil
}

func writeGob(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}
