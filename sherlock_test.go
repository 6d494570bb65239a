package sherlock

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sherlockai/sherlock/classify"
	"github.com/sherlockai/sherlock/corpus"
	"github.com/sherlockai/sherlock/embedding"
	"github.com/sherlockai/sherlock/kvcache"
	"github.com/sherlockai/sherlock/llm"
	"github.com/sherlockai/sherlock/reasoning"
	"github.com/sherlockai/sherlock/retrieval"
	"github.com/sherlockai/sherlock/vecstore"
)

// scriptedProvider drives both the classifier and the generator. The
// classifier is recognizable by its 10-token cap; everything else gets
// the generation reply.
type scriptedProvider struct {
	complexity string
	answer     string
	chatErr    error
	embedVec   []float32
}

func (p *scriptedProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.chatErr != nil {
		return nil, p.chatErr
	}
	if req.MaxTokens == 10 {
		return &llm.ChatResponse{Content: p.complexity}, nil
	}
	return &llm.ChatResponse{Content: p.answer}, nil
}

func (p *scriptedProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = p.embedVec
	}
	return out, nil
}

// memoryVectorStore is an in-process stand-in for the SQLite store.
type memoryVectorStore struct {
	matches  []vecstore.Match
	upserted []string
	queries  []vecstore.QueryLog
	feedback []vecstore.Feedback
}

func (m *memoryVectorStore) Query(_ context.Context, _ []float32, k int, _ map[string]string) ([]vecstore.Match, error) {
	if len(m.matches) > k {
		return m.matches[:k], nil
	}
	return m.matches, nil
}

func (m *memoryVectorStore) Upsert(_ context.Context, inc corpus.Incident, _ []float32) error {
	m.upserted = append(m.upserted, inc.ID)
	return nil
}

func (m *memoryVectorStore) LogQuery(_ context.Context, q vecstore.QueryLog) error {
	m.queries = append(m.queries, q)
	return nil
}

func (m *memoryVectorStore) LogFeedback(_ context.Context, f vecstore.Feedback) error {
	m.feedback = append(m.feedback, f)
	return nil
}

func (m *memoryVectorStore) DBStats(context.Context) (*vecstore.Stats, error) {
	return &vecstore.Stats{Incidents: len(m.upserted)}, nil
}

func (m *memoryVectorStore) Close() error { return nil }

func demoIncidents() []corpus.Incident {
	return []corpus.Incident{
		{
			ID:          "JSP-1046",
			Title:       "Webhook signature mismatch on callback",
			Description: "merchant webhook callbacks rejected with signature mismatch",
			Resolution:  "fixed HMAC key rotation ordering",
			Tags:        []string{"webhook", "signature"},
		},
		{
			ID:          "JSP-1037",
			Title:       "Hyper PG Transactions Stuck in Authorizing State",
			Description: "transactions stuck in authorizing on the hyper gateway",
			Resolution:  "requeued stuck transactions and patched the state machine",
			Tags:        []string{"gateway", "hyper", "authorization"},
		},
		{
			ID:          "JSP-1052",
			Title:       "Pinelabs Online Gateway RSA Decryption Failure for snapdeal_test",
			Description: "merchant snapdeal_test transactions on pinelabs failing with INTERNAL_SERVER_ERROR during RSA decryption",
			Resolution:  "rotated RSA key pair and redeployed the adapter",
			Tags:        []string{"pinelabs", "snapdeal", "rsa"},
		},
		{
			ID:          "JSP-1001",
			Title:       "UPI payment failed with error 5003",
			Description: "UPI transactions failing with error code 5003 at the PSP",
			Resolution:  "PSP-side fix, added retry with backoff",
			Tags:        []string{"upi", "5003"},
		},
	}
}

// newTestEngine wires an engine around in-memory fakes and the demo corpus.
func newTestEngine(t *testing.T, provider *scriptedProvider, vectors *memoryVectorStore) *engine {
	t.Helper()

	store := corpus.New(t.TempDir())
	if err := store.Rebuild(demoIncidents()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	cfg := DefaultConfig()
	classifier, err := classify.New(provider, "test-model", cfg.ClassifierCacheSize)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	embedder := embedding.New(provider, kvcache.Noop{}, "test-embed", 4,
		cfg.EmbedCacheTTL, cfg.EmbedConcurrency)

	return &engine{
		cfg:        cfg,
		corpus:     store,
		vectors:    vectors,
		cache:      kvcache.Noop{},
		embedder:   embedder,
		classifier: classifier,
		retriever:  retrieval.New(store, embedder, vectors),
		generator:  reasoning.NewGenerator(provider, "test-model"),
	}
}

func checkRejectionShape(t *testing.T, resp *Response) {
	t.Helper()
	if len(resp.RetrievedIncidents) != 0 {
		t.Errorf("%s must carry no incidents, got %d", resp.RAGStrategy, len(resp.RetrievedIncidents))
	}
	if len(resp.Sources) != 0 {
		t.Errorf("%s must carry no sources, got %d", resp.RAGStrategy, len(resp.Sources))
	}
}

func TestProcessQueryExactID(t *testing.T) {
	provider := &scriptedProvider{
		complexity: "simple",
		answer:     "JSP-1046 was a webhook signature mismatch fixed by rotating the HMAC key.",
		embedVec:   []float32{1, 0, 0, 0},
	}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	resp, err := e.ProcessQuery(context.Background(), "JSP-1046")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RAGStrategy != StrategyExactIDLookup {
		t.Errorf("strategy = %s, want %s", resp.RAGStrategy, StrategyExactIDLookup)
	}
	if len(resp.RetrievedIncidents) != 1 || resp.RetrievedIncidents[0].ID != "JSP-1046" {
		t.Fatalf("incidents = %+v, want exactly JSP-1046", resp.RetrievedIncidents)
	}
	if resp.ConfidenceScore != 1.0 {
		t.Errorf("confidence = %v, want 1.0", resp.ConfidenceScore)
	}
	if resp.GeneratedAnswer != provider.answer {
		t.Errorf("answer = %q, want the model summary", resp.GeneratedAnswer)
	}
	if len(resp.Sources) != 1 || !strings.HasPrefix(resp.Sources[0], "[JSP-1046] ") {
		t.Errorf("sources = %v, want one entry for JSP-1046", resp.Sources)
	}
}

func TestProcessQueryIDIdempotence(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", answer: "summary", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	var strategies []string
	var topIDs []string
	for _, q := range []string{"JSP-1046", "jsp-1046", "  JSP-1046  ", "please look at JSP-1046 again"} {
		resp, err := e.ProcessQuery(context.Background(), q)
		if err != nil {
			t.Fatalf("ProcessQuery(%q): %v", q, err)
		}
		strategies = append(strategies, resp.RAGStrategy)
		if len(resp.RetrievedIncidents) != 1 {
			t.Fatalf("ProcessQuery(%q): %d incidents", q, len(resp.RetrievedIncidents))
		}
		topIDs = append(topIDs, resp.RetrievedIncidents[0].ID)
	}
	for i := 1; i < len(strategies); i++ {
		if strategies[i] != strategies[0] || topIDs[i] != topIDs[0] {
			t.Errorf("variant %d diverged: (%s, %s) vs (%s, %s)",
				i, strategies[i], topIDs[i], strategies[0], topIDs[0])
		}
	}
}

func TestProcessQueryExactIDNotFound(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", answer: "unused", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	resp, err := e.ProcessQuery(context.Background(), "can you help me to solve this JSP-1030")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RAGStrategy != StrategyExactIDNotFound {
		t.Errorf("strategy = %s, want %s", resp.RAGStrategy, StrategyExactIDNotFound)
	}
	if resp.ConfidenceScore != 1.0 {
		t.Errorf("confidence = %v, want 1.0", resp.ConfidenceScore)
	}
	checkRejectionShape(t, resp)
	if !strings.Contains(resp.GeneratedAnswer, "JSP-1030") {
		t.Errorf("answer should name the missing id: %q", resp.GeneratedAnswer)
	}
}

func TestProcessQueryDomainFilter(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", answer: "unused", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	resp, err := e.ProcessQuery(context.Background(), "how to deploy a microservice")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RAGStrategy != StrategyDomainFilter {
		t.Errorf("strategy = %s, want %s", resp.RAGStrategy, StrategyDomainFilter)
	}
	if resp.ConfidenceScore != 1.0 {
		t.Errorf("confidence = %v, want 1.0", resp.ConfidenceScore)
	}
	checkRejectionShape(t, resp)
}

func TestProcessQueryIDBypassesDomainGate(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", answer: "summary", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	// Nothing payment-flavored in the prose, only the ID.
	resp, err := e.ProcessQuery(context.Background(), "my kubernetes pod mentions JSP-1001 somewhere")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RAGStrategy == StrategyDomainFilter {
		t.Fatal("ID-bearing query must never be domain-filtered")
	}
	if resp.RAGStrategy != StrategyExactIDLookup {
		t.Errorf("strategy = %s, want %s", resp.RAGStrategy, StrategyExactIDLookup)
	}
}

func TestProcessQuerySimpleTitleMatch(t *testing.T) {
	provider := &scriptedProvider{
		complexity: "simple",
		answer:     "Fix Suggestion: requeue the stuck transactions and patch the state machine.",
		embedVec:   []float32{1, 0, 0, 0},
	}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	resp, err := e.ProcessQuery(context.Background(), "Hyper PG Transactions Stuck in Authorizing State")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !strings.HasPrefix(resp.RAGStrategy, "simple_query_with_") {
		t.Errorf("strategy = %s, want simple_query_with_<k>_incidents", resp.RAGStrategy)
	}
	if len(resp.RetrievedIncidents) == 0 || resp.RetrievedIncidents[0].ID != "JSP-1037" {
		t.Fatalf("top incident = %+v, want JSP-1037", resp.RetrievedIncidents)
	}
	if resp.ConfidenceScore <= 0.7 {
		t.Errorf("confidence = %v, want > 0.7", resp.ConfidenceScore)
	}
	if resp.QueryComplexity != classify.Simple {
		t.Errorf("complexity = %s, want simple", resp.QueryComplexity)
	}
	if len(resp.Sources) != len(resp.RetrievedIncidents) {
		t.Fatalf("sources/incidents length mismatch: %d vs %d",
			len(resp.Sources), len(resp.RetrievedIncidents))
	}
	for i, s := range resp.Sources {
		if !strings.HasPrefix(s, "["+resp.RetrievedIncidents[i].ID+"] ") {
			t.Errorf("source %d = %q not parallel to incident %s", i, s, resp.RetrievedIncidents[i].ID)
		}
	}
}

func TestProcessQueryPerfectMerchantGatewayMatch(t *testing.T) {
	provider := &scriptedProvider{
		complexity: "simple",
		answer:     "Fix Suggestion: rotate the RSA key pair for snapdeal_test on pinelabs.",
		embedVec:   []float32{1, 0, 0, 0},
	}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	resp, err := e.ProcessQuery(context.Background(),
		"merchant snapdeal (MID: snapdeal_test) pinelabs_online INTERNAL_SERVER_ERROR")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if len(resp.RetrievedIncidents) == 0 {
		t.Fatal("expected incidents")
	}
	top := resp.RetrievedIncidents[0]
	if top.ID != "JSP-1052" {
		t.Fatalf("top = %s, want JSP-1052", top.ID)
	}
	if top.MatchType != retrieval.MatchPerfectMerchantGateway {
		t.Errorf("match type = %s, want %s", top.MatchType, retrieval.MatchPerfectMerchantGateway)
	}
	if resp.ConfidenceScore <= 0.8 {
		t.Errorf("confidence = %v, want > 0.8", resp.ConfidenceScore)
	}
}

func TestProcessQueryComplex(t *testing.T) {
	incidents := demoIncidents()
	vectors := &memoryVectorStore{matches: []vecstore.Match{
		{ID: "JSP-1001", Score: 0.8, Incident: incidents[3]},
		{ID: "JSP-1046", Score: 0.6, Incident: incidents[0]},
		{ID: "JSP-1037", Score: 0.5, Incident: incidents[1]},
	}}
	provider := &scriptedProvider{
		complexity: "complex",
		answer:     "Analysis: refunds fail at the PSP.\nResolution: add retries.\nPrevention: monitor the PSP error rate.",
		embedVec:   []float32{1, 0, 0, 0},
	}
	e := newTestEngine(t, provider, vectors)

	resp, err := e.ProcessQuery(context.Background(), "Why do refunds fail frequently?")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.QueryComplexity != classify.Complex {
		t.Errorf("complexity = %s, want complex", resp.QueryComplexity)
	}
	if !strings.HasPrefix(resp.RAGStrategy, "complex_query_with_") {
		t.Errorf("strategy = %s, want complex_query_with_<k>_incidents", resp.RAGStrategy)
	}
	for _, section := range []string{"Analysis:", "Resolution:", "Prevention:"} {
		if !strings.Contains(resp.GeneratedAnswer, section) {
			t.Errorf("answer missing %q section", section)
		}
	}
	if resp.ConfidenceScore < e.cfg.ConfidenceFloor {
		t.Errorf("confidence = %v below floor", resp.ConfidenceScore)
	}
}

func TestProcessQueryNoResults(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", answer: "unused", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	// In-domain vocabulary but nothing in the corpus scores.
	resp, err := e.ProcessQuery(context.Background(), "mandate chargeback settlement dispute ledger")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RAGStrategy != StrategyNoResults && resp.RAGStrategy != StrategyLowConfidence {
		t.Errorf("strategy = %s, want a rejection strategy", resp.RAGStrategy)
	}
	checkRejectionShape(t, resp)
}

func TestProcessQueryEmptyQuery(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	if _, err := e.ProcessQuery(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestProcessQueryEmptyCorpus(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", answer: "unused", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})
	if err := e.corpus.Rebuild(nil); err != nil {
		t.Fatalf("rebuild empty: %v", err)
	}

	resp, err := e.ProcessQuery(context.Background(), "upi payment failing")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RAGStrategy != StrategyNoResults {
		t.Errorf("strategy = %s, want %s", resp.RAGStrategy, StrategyNoResults)
	}
	checkRejectionShape(t, resp)
}

func TestProcessQueryAuditLogged(t *testing.T) {
	vectors := &memoryVectorStore{}
	provider := &scriptedProvider{complexity: "simple", answer: "summary", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, vectors)

	if _, err := e.ProcessQuery(context.Background(), "JSP-1046"); err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if len(vectors.queries) != 1 {
		t.Fatalf("query log entries = %d, want 1", len(vectors.queries))
	}
	entry := vectors.queries[0]
	if entry.Strategy != StrategyExactIDLookup || entry.Confidence != 1.0 {
		t.Errorf("logged entry = %+v", entry)
	}
}

func TestLogFeedback(t *testing.T) {
	vectors := &memoryVectorStore{}
	provider := &scriptedProvider{complexity: "simple", answer: "summary", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, vectors)

	resp, err := e.ProcessQuery(context.Background(), "JSP-1046")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}

	if err := e.LogFeedback(context.Background(), "JSP-1046", resp, FeedbackUp, "spot on", true); err != nil {
		t.Fatalf("LogFeedback: %v", err)
	}
	if len(vectors.feedback) != 1 || !vectors.feedback[0].Helpful {
		t.Errorf("feedback rows = %+v", vectors.feedback)
	}

	if err := e.LogFeedback(context.Background(), "JSP-1046", resp, "MAYBE", "", false); !errors.Is(err, ErrInvalidFeedback) {
		t.Errorf("err = %v, want ErrInvalidFeedback", err)
	}
}

func TestMetrics(t *testing.T) {
	provider := &scriptedProvider{complexity: "complex", answer: "a", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	if _, err := e.ProcessQuery(context.Background(), "Why do refunds fail frequently?"); err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}

	m := e.Metrics(context.Background())
	if m.CorpusSize != len(demoIncidents()) {
		t.Errorf("corpus size = %d, want %d", m.CorpusSize, len(demoIncidents()))
	}
	if m.ClassifierCacheSize != 1 {
		t.Errorf("classifier cache = %d, want 1", m.ClassifierCacheSize)
	}
	if m.ComplexityDistribution[classify.Complex] != 1 {
		t.Errorf("distribution = %v, want one complex entry", m.ComplexityDistribution)
	}
	if m.ConfidenceThreshold != e.cfg.ConfidenceFloor {
		t.Errorf("threshold = %v, want %v", m.ConfidenceThreshold, e.cfg.ConfidenceFloor)
	}
	if !m.Index.BM25Available || !m.Index.TFIDFAvailable {
		t.Errorf("index stats = %+v, want lexical indices available", m.Index)
	}
}

func TestHealthCheck(t *testing.T) {
	provider := &scriptedProvider{complexity: "simple", answer: "a", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, &memoryVectorStore{})

	h := e.HealthCheck(context.Background())
	if h.Status != "healthy" {
		t.Errorf("status = %s, want healthy (probe hits the UPI incident)", h.Status)
	}
	if h.TestedRetrievalCount == 0 {
		t.Error("probe retrieval returned nothing")
	}
	if h.TestedClassification != classify.Simple {
		t.Errorf("probe classification = %s, want simple", h.TestedClassification)
	}
	if !h.CacheReachable {
		t.Error("noop cache must report reachable")
	}
}

func TestBuildIndices(t *testing.T) {
	vectors := &memoryVectorStore{}
	provider := &scriptedProvider{complexity: "simple", answer: "a", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, vectors)

	incidents := demoIncidents()
	if err := e.BuildIndices(context.Background(), incidents); err != nil {
		t.Fatalf("BuildIndices: %v", err)
	}
	if len(vectors.upserted) != len(incidents) {
		t.Errorf("upserted %d vectors, want %d", len(vectors.upserted), len(incidents))
	}
	if e.corpus.Count() != len(incidents) {
		t.Errorf("corpus count = %d, want %d", e.corpus.Count(), len(incidents))
	}
}

func TestBuildIndicesEmptyCorpus(t *testing.T) {
	vectors := &memoryVectorStore{}
	provider := &scriptedProvider{complexity: "simple", answer: "a", embedVec: []float32{1, 0, 0, 0}}
	e := newTestEngine(t, provider, vectors)

	if err := e.BuildIndices(context.Background(), nil); err != nil {
		t.Fatalf("BuildIndices(empty): %v", err)
	}
	resp, err := e.ProcessQuery(context.Background(), "upi payment failing")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	checkRejectionShape(t, resp)
}
