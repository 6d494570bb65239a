// Package sherlock is a retrieval-augmented answering engine for payment
// incidents. It routes a free-text query (or an incident ID) through
// hybrid retrieval over a historical incident corpus, gates the candidates
// for relevance, and produces a grounded answer with provenance.
package sherlock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sherlockai/sherlock/classify"
	"github.com/sherlockai/sherlock/corpus"
	"github.com/sherlockai/sherlock/embedding"
	"github.com/sherlockai/sherlock/kvcache"
	"github.com/sherlockai/sherlock/llm"
	"github.com/sherlockai/sherlock/reasoning"
	"github.com/sherlockai/sherlock/retrieval"
	"github.com/sherlockai/sherlock/route"
	"github.com/sherlockai/sherlock/textutil"
	"github.com/sherlockai/sherlock/vecstore"
)

// Feedback verdicts accepted by LogFeedback.
const (
	FeedbackUp      = "UP"
	FeedbackDown    = "DOWN"
	FeedbackNeutral = "NEUTRAL"
)

const maxSuggestions = 3

// healthProbe is the canned query HealthCheck pushes through the
// classifier and retriever.
const healthProbe = "UPI payment timeout test"

// Engine is the main entry point.
type Engine interface {
	// ProcessQuery answers one query. Every internal failure is absorbed
	// into the returned Response; the only error is a blank query.
	ProcessQuery(ctx context.Context, query string) (*Response, error)

	// LogFeedback records operator feedback on a previous response.
	LogFeedback(ctx context.Context, query string, resp *Response, verdict, comment string, helpful bool) error

	// Metrics reports cache, index, and distribution statistics.
	Metrics(ctx context.Context) *Metrics

	// HealthCheck runs a canned classification and retrieval and reports
	// component status with timings.
	HealthCheck(ctx context.Context) *Health

	// BuildIndices rebuilds the lexical indices and the vector index from
	// the given incidents, replacing the previous generation.
	BuildIndices(ctx context.Context, incidents []corpus.Incident) error

	// Close releases the vector store and cache connections.
	Close() error
}

// Metrics is the operator-facing statistics snapshot.
type Metrics struct {
	CorpusSize             int                         `json:"corpus_size"`
	ClassifierCacheSize    int                         `json:"classifier_cache_size"`
	ComplexityDistribution map[classify.Complexity]int `json:"complexity_distribution"`
	ConfidenceThreshold    float64                     `json:"confidence_threshold"`
	Embedding              embedding.Stats             `json:"embedding"`
	Index                  corpus.IndexStats           `json:"index"`
	Store                  *vecstore.Stats             `json:"store,omitempty"`
}

// Health is the health-check report.
type Health struct {
	Status               string              `json:"status"`
	TestedClassification classify.Complexity `json:"tested_classification"`
	TestedRetrievalCount int                 `json:"tested_retrieval_count"`
	CacheReachable       bool                `json:"cache_reachable"`
	ElapsedMs            int64               `json:"elapsed_ms"`
}

// vectorStore is what the engine needs from the vector database: KNN plus
// the audit tables. *vecstore.Store satisfies it.
type vectorStore interface {
	vecstore.Index
	LogQuery(ctx context.Context, q vecstore.QueryLog) error
	LogFeedback(ctx context.Context, f vecstore.Feedback) error
	DBStats(ctx context.Context) (*vecstore.Stats, error)
	Close() error
}

type engine struct {
	cfg        Config
	corpus     *corpus.Store
	vectors    vectorStore
	cache      kvcache.Cache
	embedder   *embedding.Client
	classifier *classify.Classifier
	retriever  *retrieval.Engine
	generator  *reasoning.Generator
}

// New creates an engine from the configuration. The corpus hydrates from
// the disk cache if a consistent generation exists; otherwise the engine
// starts in semantic-only mode until BuildIndices runs.
func New(cfg Config) (Engine, error) {
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("%w: embedding dim %d", ErrInvalidConfig, cfg.EmbeddingDim)
	}

	vectors, err := vecstore.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	chat, err := llm.NewProvider(llm.Config(cfg.Chat))
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}
	embed, err := llm.NewProvider(llm.Config(cfg.Embedding))
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	// The Redis cache is an accelerator, not a dependency: if it is down
	// at startup we run uncached.
	var cache kvcache.Cache = kvcache.Noop{}
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		c, cerr := kvcache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if cerr != nil {
			slog.Warn("engine: redis unavailable, embedding cache disabled",
				"addr", cfg.RedisAddr, "error", cerr)
		} else {
			cache = c
		}
	}

	classifier, err := classify.New(chat, cfg.Chat.Model, cfg.ClassifierCacheSize)
	if err != nil {
		vectors.Close()
		cache.Close()
		return nil, fmt.Errorf("creating classifier: %w", err)
	}

	store := corpus.New(cfg.resolveCacheDir())
	embedder := embedding.New(embed, cache, cfg.Embedding.Model, cfg.EmbeddingDim,
		cfg.EmbedCacheTTL, cfg.EmbedConcurrency)

	return &engine{
		cfg:        cfg,
		corpus:     store,
		vectors:    vectors,
		cache:      cache,
		embedder:   embedder,
		classifier: classifier,
		retriever:  retrieval.New(store, embedder, vectors),
		generator:  reasoning.NewGenerator(chat, cfg.Chat.Model),
	}, nil
}

// ProcessQuery runs the per-request state machine: ID check, domain gate,
// classification, hybrid retrieval, relevance gate, confidence floor,
// generation. No internal failure escapes; the worst outcome is an
// error-fallback response.
func (e *engine) ProcessQuery(ctx context.Context, query string) (resp *Response, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: panic recovered", "query", query, "panic", r)
			resp = e.emit(ctx, &Response{
				Query:           query,
				GeneratedAnswer: fmt.Sprintf("Internal error while processing the query: %v", r),
				ConfidenceScore: 0,
				QueryComplexity: classify.Unknown,
				RAGStrategy:     StrategyErrorFallback,
			}, start)
			err = nil
		}
	}()

	if id := route.ExtractIncidentID(query); id != "" {
		return e.processExactID(ctx, query, id, start), nil
	}

	if !route.IsPaymentDomain(query) {
		return e.emit(ctx, &Response{
			Query:           query,
			GeneratedAnswer: domainFilterAnswer(query),
			ConfidenceScore: 1.0,
			QueryComplexity: classify.Unknown,
			RAGStrategy:     StrategyDomainFilter,
		}, start), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	complexity := e.classifier.Classify(callCtx, query)
	cancel()

	topK, minScore := e.retrievalParams(complexity)
	results := e.retriever.Search(ctx, query, topK, minScore)

	if len(results) == 0 {
		return e.emit(ctx, &Response{
			Query:           query,
			GeneratedAnswer: noResultsAnswer(query, e.corpus.Suggestions(query, maxSuggestions)),
			ConfidenceScore: 0,
			QueryComplexity: complexity,
			RAGStrategy:     StrategyNoResults,
		}, start), nil
	}

	verdict := reasoning.Validate(query, results)
	if !verdict.Trusted {
		slog.Info("engine: candidates rejected by relevance gate",
			"query", query, "reason", verdict.Reason, "composite", verdict.Composite)
		return e.emit(ctx, &Response{
			Query:           query,
			GeneratedAnswer: noResultsAnswer(query, e.corpus.Suggestions(query, maxSuggestions)),
			ConfidenceScore: 0,
			QueryComplexity: complexity,
			RAGStrategy:     StrategyNoResults,
		}, start), nil
	}

	confidence := reasoning.Confidence(results, complexity)
	if confidence < e.cfg.ConfidenceFloor {
		slog.Info("engine: confidence below floor",
			"query", query, "confidence", confidence, "floor", e.cfg.ConfidenceFloor)
		return e.emit(ctx, &Response{
			Query:           query,
			GeneratedAnswer: noResultsAnswer(query, e.corpus.Suggestions(query, maxSuggestions)),
			ConfidenceScore: confidence,
			QueryComplexity: complexity,
			RAGStrategy:     StrategyLowConfidence,
		}, start), nil
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	answer := e.generator.Generate(genCtx, query, complexity, results)
	cancel()

	return e.emit(ctx, &Response{
		Query:              query,
		GeneratedAnswer:    answer,
		RetrievedIncidents: retrievedIncidents(results),
		Sources:            reasoning.Sources(results),
		ConfidenceScore:    confidence,
		QueryComplexity:    complexity,
		RAGStrategy:        StrategyForComplexity(complexity, len(results)),
	}, start), nil
}

// processExactID handles the ID branch: corpus hit yields a single-incident
// summary at full confidence, miss yields guidance. IDs bypass the domain
// gate entirely.
func (e *engine) processExactID(ctx context.Context, query, id string, start time.Time) *Response {
	inc, ok := e.corpus.ByID(id)
	if !ok {
		return e.emit(ctx, &Response{
			Query:           query,
			GeneratedAnswer: notFoundAnswer(id),
			ConfidenceScore: 1.0,
			QueryComplexity: classify.Simple,
			RAGStrategy:     StrategyExactIDNotFound,
		}, start)
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	answer := e.generator.SummarizeIncident(genCtx, inc)
	cancel()

	result := retrieval.Result{Incident: inc, FusedScore: 1.0, IsExactMatch: true}
	return e.emit(ctx, &Response{
		Query:              query,
		GeneratedAnswer:    answer,
		RetrievedIncidents: retrievedIncidents([]retrieval.Result{result}),
		Sources:            reasoning.Sources([]retrieval.Result{result}),
		ConfidenceScore:    1.0,
		QueryComplexity:    classify.Simple,
		RAGStrategy:        StrategyExactIDLookup,
	}, start)
}

// retrievalParams maps the complexity class to (topK, minScore). Unknown
// complexity retrieves narrow and strict.
func (e *engine) retrievalParams(complexity classify.Complexity) (int, float64) {
	switch complexity {
	case classify.Complex:
		return e.cfg.ComplexTopK, e.cfg.ComplexMinScore
	case classify.Simple:
		return e.cfg.SimpleTopK, e.cfg.SimpleMinScore
	default:
		return e.cfg.SimpleTopK, e.cfg.UnknownMinScore
	}
}

// emit finalizes a response: timing, timestamp, and best-effort audit log.
func (e *engine) emit(ctx context.Context, resp *Response, start time.Time) *Response {
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if resp.RetrievedIncidents == nil {
		resp.RetrievedIncidents = []RetrievedIncident{}
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}

	if err := e.vectors.LogQuery(ctx, vecstore.QueryLog{
		Query:      resp.Query,
		Strategy:   resp.RAGStrategy,
		Complexity: string(resp.QueryComplexity),
		Confidence: resp.ConfidenceScore,
		Sources:    resp.Sources,
	}); err != nil {
		slog.Warn("engine: query audit log failed", "error", err)
	}

	slog.Info("engine: query processed",
		"strategy", resp.RAGStrategy,
		"complexity", resp.QueryComplexity,
		"confidence", resp.ConfidenceScore,
		"incidents", len(resp.RetrievedIncidents),
		"elapsed_ms", resp.ExecutionTimeMs)
	return resp
}

// LogFeedback validates the verdict and records the feedback both in the
// audit store and the structured log.
func (e *engine) LogFeedback(ctx context.Context, query string, resp *Response, verdict, comment string, helpful bool) error {
	switch verdict {
	case FeedbackUp, FeedbackDown, FeedbackNeutral:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFeedback, verdict)
	}

	var strategy string
	var confidence float64
	ids := make([]string, 0)
	if resp != nil {
		strategy = resp.RAGStrategy
		confidence = resp.ConfidenceScore
		for _, inc := range resp.RetrievedIncidents {
			ids = append(ids, inc.ID)
		}
	}

	if err := e.vectors.LogFeedback(ctx, vecstore.Feedback{
		Query:   query,
		Helpful: helpful,
		Comment: comment,
	}); err != nil {
		slog.Warn("engine: feedback store write failed", "error", err)
	}

	slog.Info("engine: feedback recorded",
		"query", query,
		"verdict", verdict,
		"helpful", helpful,
		"strategy", strategy,
		"confidence", confidence,
		"incident_ids", ids)
	return nil
}

// Metrics assembles the statistics snapshot. The vector-store counts are
// best-effort; a failed read leaves Store nil.
func (e *engine) Metrics(ctx context.Context) *Metrics {
	m := &Metrics{
		CorpusSize:             e.corpus.Count(),
		ClassifierCacheSize:    e.classifier.CacheLen(),
		ComplexityDistribution: e.classifier.Distribution(),
		ConfidenceThreshold:    e.cfg.ConfidenceFloor,
		Embedding:              e.embedder.Stats(),
		Index:                  e.corpus.Stats(),
	}
	if stats, err := e.vectors.DBStats(ctx); err != nil {
		slog.Warn("engine: vector store stats failed", "error", err)
	} else {
		m.Store = stats
	}
	return m
}

// HealthCheck pushes a canned payment query through the classifier and
// retriever. Status is "healthy" when retrieval produced candidates,
// "degraded" otherwise.
func (e *engine) HealthCheck(ctx context.Context) *Health {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	complexity := e.classifier.Classify(callCtx, healthProbe)
	results := e.retriever.Search(callCtx, healthProbe, e.cfg.SimpleTopK, 0)
	cacheOK := e.cache.Ping(callCtx) == nil

	status := "healthy"
	if len(results) == 0 {
		status = "degraded"
	}
	return &Health{
		Status:               status,
		TestedClassification: complexity,
		TestedRetrievalCount: len(results),
		CacheReachable:       cacheOK,
		ElapsedMs:            time.Since(start).Milliseconds(),
	}
}

// BuildIndices replaces the corpus generation: lexical indices plus the
// disk cache triple, then one embedding and vector upsert per incident.
// Incidents whose embedding failed (zero vector) are skipped rather than
// indexed as garbage.
func (e *engine) BuildIndices(ctx context.Context, incidents []corpus.Incident) error {
	if err := e.corpus.Rebuild(incidents); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}

	texts := make([]string, len(incidents))
	for i, inc := range incidents {
		texts[i] = inc.SearchableText()
	}
	vectors := e.embedder.EmbedBatch(ctx, texts)

	var skipped int
	for i, inc := range incidents {
		if isZeroVector(vectors[i]) {
			skipped++
			continue
		}
		if err := e.vectors.Upsert(ctx, inc, vectors[i]); err != nil {
			return fmt.Errorf("%w: upserting %s: %v", ErrIndexBuildFailed, inc.ID, err)
		}
	}
	if skipped > 0 {
		slog.Warn("engine: incidents skipped during index build (embedding failed)",
			"skipped", skipped, "total", len(incidents))
	}

	slog.Info("engine: indices rebuilt",
		"incidents", len(incidents), "embedded", len(incidents)-skipped)
	return nil
}

// Close releases the vector store and the cache connection.
func (e *engine) Close() error {
	cerr := e.cache.Close()
	if err := e.vectors.Close(); err != nil {
		return err
	}
	return cerr
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// notFoundAnswer is the exact-ID miss guidance.
func notFoundAnswer(id string) string {
	return fmt.Sprintf(`Incident %s was not found in the knowledge base.

Possible next steps:
- Verify the incident ID for typos.
- The incident may not have been ingested yet; re-run the index build.
- Try describing the problem instead, e.g. "UPI payment failed with error 5003".`, id)
}

// domainFilterAnswer is the out-of-domain rejection guidance.
func domainFilterAnswer(query string) string {
	return fmt.Sprintf(`The query %q does not look like a payment-systems issue, which is the only domain this knowledge base covers.

Try asking about payment failures, gateway integrations, webhooks, refunds, settlements, or UPI/card/wallet errors. You can also reference an incident directly by its ID (e.g. JSP-1046).`, query)
}

// noResultsAnswer is the empty/untrusted-retrieval guidance. Extracted
// keywords and title suggestions help the operator reformulate.
func noResultsAnswer(query string, suggestions []string) string {
	var b strings.Builder
	b.WriteString("No sufficiently relevant past incidents were found for this query.\n")

	if keywords := textutil.Tokenize(query); len(keywords) > 0 {
		fmt.Fprintf(&b, "\nKeywords searched: %s\n", strings.Join(keywords, ", "))
	}
	if len(suggestions) > 0 {
		b.WriteString("\nRelated incidents you could look at:\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\nTry adding the merchant, gateway, or exact error code to the query.")
	return b.String()
}
