// Package app assembles the evaluation pipeline from configuration. The
// server, worker and CLI binaries share it so all three run the same stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"verdict.app/engine/common/id"
	"verdict.app/engine/common/llm"
	"verdict.app/engine/core/config"
	"verdict.app/engine/internal/brain"
	"verdict.app/engine/internal/guard"
	"verdict.app/engine/internal/prompts"
	"verdict.app/engine/internal/queue"
	"verdict.app/engine/internal/resilience"
	"verdict.app/engine/internal/retrieval"
	"verdict.app/engine/internal/search"
	"verdict.app/engine/internal/service"
	"verdict.app/engine/internal/store"
)

var ErrKnowledgeBaseDisabled = errors.New("knowledge base not configured (TYPESENSE_API_KEY and EMBEDDING_API_KEY are required)")

type Options struct {
	// RequireRedis fails Build when Redis is unreachable. Otherwise Redis is
	// optional and async submission plus the Redis cache are switched off.
	RequireRedis bool
	// Async wires the stream producer so Evaluator.Enqueue works.
	Async bool
}

type App struct {
	Config    config.Config
	Redis     *redis.Client
	Reports   store.ReportStore
	Knowledge *retrieval.TypesenseStore
	Retrieval *retrieval.Engine
	Evaluator *service.Evaluator
	Health    *service.HealthService
	Producer  queue.Producer
	Policy    resilience.Policy
	closers   []func() error
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Health: service.NewHealthService(0)}

	if err := id.Init(cfg.NodeID); err != nil {
		return nil, fmt.Errorf("initializing id generator: %w", err)
	}

	reports, err := store.Open(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("opening report store: %w", err)
	}
	a.Reports = reports
	a.closers = append(a.closers, reports.Close)
	a.Health.Register("database", reports.Ping)

	if err := a.connectRedis(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	a.Policy = resilience.Policy{
		MaxRetries:    cfg.Resilience.MaxRetries,
		InitialDelay:  cfg.Resilience.InitialDelay,
		BackoffFactor: cfg.Resilience.BackoffFactor,
	}

	memory := resilience.NewMemoryCache()
	var cache resilience.Cache = memory
	if a.Redis != nil && cfg.Resilience.RedisCache {
		cache = resilience.NewRedisCache(a.Redis, memory)
		slog.InfoContext(ctx, "using redis cache")
	}
	cacheTTL := cfg.Resilience.EffectiveCacheTTL()

	if err := a.connectKnowledge(ctx, cache, cacheTTL); err != nil {
		a.Close()
		return nil, err
	}

	analysisLLM, err := llm.NewClient(llm.Config{
		Provider: cfg.AnalysisLLM.Provider,
		APIKey:   cfg.AnalysisLLM.APIKey,
		BaseURL:  cfg.AnalysisLLM.BaseURL,
		Model:    cfg.AnalysisLLM.Model,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating analysis llm client: %w", err)
	}

	decisionLLM, err := llm.NewClient(llm.Config{
		Provider: cfg.DecisionLLM.Provider,
		APIKey:   cfg.DecisionLLM.APIKey,
		BaseURL:  cfg.DecisionLLM.BaseURL,
		Model:    cfg.DecisionLLM.Model,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating decision llm client: %w", err)
	}

	if !cfg.Search.Enabled() {
		slog.WarnContext(ctx, "TAVILY_API_KEY not set, web research disabled")
	}
	searcher := search.NewTavilyClient(search.Config{
		APIKey:     cfg.Search.TavilyAPIKey,
		BaseURL:    cfg.Search.BaseURL,
		MaxResults: cfg.Search.MaxResults,
		Depth:      cfg.Search.Depth,
	})

	loader := prompts.NewLoader(cfg.PromptsDir)

	tasks := brain.NewAnalysisTasks(brain.TaskDeps{
		LLM:         analysisLLM,
		Prompts:     loader,
		Searcher:    searcher,
		Cache:       cache,
		CacheTTL:    cacheTTL,
		Policy:      a.Policy,
		MaxTokens:   cfg.AnalysisLLM.MaxTokens,
		Temperature: cfg.AnalysisLLM.Temperature,
	})

	// A nil *Engine inside the interface would defeat the synthesizer's nil check.
	var retriever brain.Retriever
	if a.Retrieval != nil {
		retriever = a.Retrieval
	}
	synth := brain.NewSynthesizer(decisionLLM, retriever, loader, brain.SynthesizerConfig{
		Policy:      a.Policy,
		MaxTokens:   cfg.DecisionLLM.MaxTokens,
		Temperature: cfg.DecisionLLM.Temperature,
		TopK:        cfg.Retrieval.TopK,
	})

	orch := brain.NewOrchestrator(brain.OrchestratorConfig{RunTimeout: cfg.RunTimeout}, tasks, synth)

	if opts.Async && a.Redis != nil {
		// The producer shares a.Redis, which is already on the close list.
		a.Producer = queue.NewRedisProducer(a.Redis, queue.ProducerConfig{
			Stream: cfg.Pipeline.RedisStream,
			MaxLen: cfg.Pipeline.RedisMaxLen,
		})
	}

	a.Evaluator = service.NewEvaluator(service.EvaluatorDeps{
		Limiter:      guard.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
		Validator:    guard.NewValidator(),
		Orchestrator: orch,
		Reports:      reports,
		Producer:     a.Producer,
		Model:        decisionLLM.Model(),
	})

	slog.InfoContext(ctx, "evaluation pipeline ready",
		"analysis_model", analysisLLM.Model(),
		"decision_model", decisionLLM.Model(),
		"web_search", cfg.Search.Enabled(),
		"knowledge_base", a.Retrieval != nil,
		"async", a.Producer != nil,
		"components", a.Health.Names())

	return a, nil
}

func (a *App) connectRedis(ctx context.Context, opts Options) error {
	if !opts.RequireRedis && !opts.Async && !a.Config.Resilience.RedisCache {
		return nil
	}

	redisOpts, err := redis.ParseURL(a.Config.Pipeline.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if opts.RequireRedis {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		slog.WarnContext(ctx, "redis unavailable, continuing without queue and shared cache", "error", err)
		return nil
	}

	a.Redis = client
	a.closers = append(a.closers, client.Close)
	a.Health.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	slog.InfoContext(ctx, "redis connected", "stream", a.Config.Pipeline.RedisStream)
	return nil
}

func (a *App) connectKnowledge(ctx context.Context, cache resilience.Cache, cacheTTL time.Duration) error {
	cfg := a.Config
	if !cfg.Typesense.Enabled() || !cfg.Embedding.Enabled() {
		slog.WarnContext(ctx, "knowledge base not configured, decisions run without company policy context")
		return nil
	}

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	client := retrieval.NewTypesenseClient(cfg.Typesense.URL, cfg.Typesense.APIKey)
	a.Knowledge = retrieval.NewTypesenseStore(client, cfg.Typesense.Collection, embedder)
	a.Health.Register("vector_store", a.Knowledge.Ping)

	a.Retrieval = retrieval.NewEngine(a.Knowledge, retrieval.Config{
		TopK:           cfg.Retrieval.TopK,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		Rerank:         true,
		Policy:         a.Policy,
		Cache:          cache,
		CacheTTL:       cacheTTL,
	})
	return nil
}

// KnowledgeBase returns the vector store for ingestion and retrieval checks.
func (a *App) KnowledgeBase() (*retrieval.TypesenseStore, error) {
	if a.Knowledge == nil {
		return nil, ErrKnowledgeBaseDisabled
	}
	return a.Knowledge, nil
}

// Close releases everything Build opened, most recent first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
