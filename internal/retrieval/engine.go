package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"verdict.app/engine/common/logger"
	"verdict.app/engine/internal/resilience"
)

const (
	NoRelevantDocuments       = "No relevant company documents found."
	NoDocumentsAboveThreshold = "No relevant company documents found (below quality threshold)."
	KnowledgeBaseOffline      = "Company Knowledge Base is offline (DB not initialized)."

	DefaultTopK           = 3
	DefaultScoreThreshold = 0.5
)

var ErrRetrieval = errors.New("retrieval failed")

type Config struct {
	TopK           int
	ScoreThreshold float64
	// Rerank fetches 2k neighbours and reorders them; without it the store's
	// top k are returned by similarity alone.
	Rerank   bool
	Policy   resilience.Policy
	Cache    resilience.Cache
	CacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		TopK:           DefaultTopK,
		ScoreThreshold: DefaultScoreThreshold,
		Rerank:         true,
		Policy:         resilience.DefaultPolicy(),
	}
}

type queryArgs struct {
	Topic string `json:"topic"`
	K     int    `json:"k"`
}

// Engine answers topic queries against the company knowledge base with a
// formatted, ranked context block.
type Engine struct {
	store  VectorStore
	cfg    Config
	search resilience.Func[queryArgs, []Match]
	query  resilience.Func[queryArgs, string]
}

func NewEngine(store VectorStore, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}

	e := &Engine{store: store, cfg: cfg}
	e.search = resilience.WithRetry(cfg.Policy, "vector_store", func(ctx context.Context, a queryArgs) ([]Match, error) {
		return e.store.SimilaritySearch(ctx, a.Topic, a.K)
	})
	e.query = resilience.WithCache(cfg.Cache, "retrieval.query", cfg.CacheTTL, e.run)
	return e
}

// Query returns the formatted top-k context for topic. An empty result is the
// NoRelevantDocuments sentinel, never an error; store failures wrap ErrRetrieval.
func (e *Engine) Query(ctx context.Context, topic string, k int) (string, error) {
	if e == nil || e.store == nil {
		return KnowledgeBaseOffline, nil
	}
	if k <= 0 {
		k = e.cfg.TopK
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "verdict.retrieval"})
	return e.query(ctx, queryArgs{Topic: topic, K: k})
}

func (e *Engine) run(ctx context.Context, a queryArgs) (string, error) {
	fetch := a.K
	if e.cfg.Rerank {
		fetch = a.K * 2
	}

	start := time.Now()
	matches, err := e.search(ctx, queryArgs{Topic: a.Topic, K: fetch})
	if err != nil {
		slog.ErrorContext(ctx, "knowledge base query failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	if len(matches) == 0 {
		slog.WarnContext(ctx, "no knowledge base results", "topic", logger.Truncate(a.Topic, 80))
		return NoRelevantDocuments, nil
	}

	chunks := Filter(matches, e.cfg.ScoreThreshold)
	if len(chunks) == 0 {
		slog.WarnContext(ctx, "no knowledge base results above threshold",
			"threshold", e.cfg.ScoreThreshold,
			"candidates", len(matches))
		return NoDocumentsAboveThreshold, nil
	}

	if e.cfg.Rerank {
		chunks = Rerank(a.Topic, chunks, a.K)
	} else if len(chunks) > a.K {
		chunks = chunks[:a.K]
	}

	var sum float64
	for _, c := range chunks {
		sum += c.CombinedScore
	}
	slog.InfoContext(ctx, "knowledge base query completed",
		"candidates", len(matches),
		"returned", len(chunks),
		"avg_score", sum/float64(len(chunks)),
		"duration_ms", time.Since(start).Milliseconds())

	return Format(chunks), nil
}
