package sherlock

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for the Sherlock engine.
type Config struct {
	// DBPath is the full path to the SQLite vector index file.
	// If empty, defaults to <CacheDir>/vectors.db.
	DBPath string `json:"db_path" yaml:"db_path"`

	// CacheDir is where the serialized BM25/TF-IDF/corpus caches live.
	// Defaults to ~/.sherlock/cache.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// LLM providers.
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// RedisAddr enables the Redis embedding cache when non-empty
	// (host:port). When empty, embeddings are not cached.
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`

	// Retrieval parameters per query complexity. The fusion weights are
	// fixed constants in the retrieval package, not configuration.
	SimpleTopK      int     `json:"simple_top_k" yaml:"simple_top_k"`
	ComplexTopK     int     `json:"complex_top_k" yaml:"complex_top_k"`
	SimpleMinScore  float64 `json:"simple_min_score" yaml:"simple_min_score"`
	ComplexMinScore float64 `json:"complex_min_score" yaml:"complex_min_score"`
	UnknownMinScore float64 `json:"unknown_min_score" yaml:"unknown_min_score"`

	// ConfidenceFloor converts answers scored below it into honest rejections.
	ConfidenceFloor float64 `json:"confidence_floor" yaml:"confidence_floor"`

	// EmbeddingDim must match the embedding model (e.g. 768).
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// EmbedConcurrency bounds parallel embedding calls when batching.
	EmbedConcurrency int `json:"embed_concurrency" yaml:"embed_concurrency"`

	// EmbedCacheTTL is how long cached embeddings stay valid.
	EmbedCacheTTL time.Duration `json:"embed_cache_ttl" yaml:"embed_cache_ttl"`

	// ClassifierCacheSize bounds the query-complexity LRU cache.
	ClassifierCacheSize int `json:"classifier_cache_size" yaml:"classifier_cache_size"`

	// RequestTimeout applies to each outbound model/index call.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // gemini, openai, ollama, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with the production defaults.
// The retrieval parameters are deliberate constants, not tunables
// discovered per deployment.
func DefaultConfig() Config {
	return Config{
		Chat: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-1.5-flash",
		},
		Embedding: LLMConfig{
			Provider: "gemini",
			Model:    "text-embedding-004",
		},
		SimpleTopK:          3,
		ComplexTopK:         8,
		SimpleMinScore:      0.2,
		ComplexMinScore:     0.15,
		UnknownMinScore:     0.3,
		ConfidenceFloor:     0.4,
		EmbeddingDim:        768,
		EmbedConcurrency:    10,
		EmbedCacheTTL:       24 * time.Hour,
		ClassifierCacheSize: 10000,
		RequestTimeout:      10 * time.Second,
	}
}

// resolveCacheDir computes the cache directory, creating a default under
// the user's home when unset.
func (c *Config) resolveCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sherlock", "cache")
	}
	return filepath.Join(home, ".sherlock", "cache")
}

// resolveDBPath computes the vector index path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.resolveCacheDir(), "vectors.db")
}
