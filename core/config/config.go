package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"verdict.app/engine/core/db"
)

type Config struct {
	OTel        OTelConfig
	Pipeline    PipelineConfig
	AnalysisLLM LLMConfig
	DecisionLLM LLMConfig
	Embedding   EmbeddingConfig
	Search      SearchConfig
	Typesense   TypesenseConfig
	Retrieval   RetrievalConfig
	Resilience  ResilienceConfig
	RateLimit   RateLimitConfig
	Env         string
	Port        string
	// LogLevel overrides the env-derived level: debug, info, warn or error.
	LogLevel string
	NodeID   int64
	// TrustedProxies may set X-Forwarded-For, which then becomes the
	// rate-limit key. Empty means the peer address is always used.
	TrustedProxies []string
	// RunTimeout bounds a single evaluation run. Zero leaves the barrier unbounded.
	RunTimeout time.Duration
	PromptsDir string
	DB         db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
	// SampleRatio is the share of new traces kept; traces continued from a
	// sampled parent are always kept.
	SampleRatio float64
}

type PipelineConfig struct {
	RedisURL       string
	RedisStream    string
	RedisGroup     string
	RedisDLQStream string
	RedisConsumer  string
	// RedisMaxLen trims the submission stream approximately. Zero never trims.
	RedisMaxLen int64
}

type LLMConfig struct {
	Provider    string // "openai" or "anthropic"
	APIKey      string
	BaseURL     string // Optional: for custom endpoints
	Model       string
	MaxTokens   int
	Temperature float64
}

type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type SearchConfig struct {
	TavilyAPIKey string
	BaseURL      string
	MaxResults   int
	Depth        string // "basic" or "advanced"
}

type TypesenseConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type RetrievalConfig struct {
	TopK           int
	ScoreThreshold float64
	DocsDir        string
	ChunkSize      int
	ChunkOverlap   int
}

type ResilienceConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	CacheEnabled  bool
	CacheTTL      time.Duration
	// RedisCache switches the process cache from memory to Redis (with memory fallback).
	RedisCache bool
}

type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeCLI    ServiceType = "cli"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the background worker
//   - .env.cli for the command line tool
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("VERDICT_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	openAIKey := getEnv("OPENAI_API_KEY", "")

	cfg := Config{
		Env:        getEnv("VERDICT_ENV", "development"),
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", ""),
		NodeID:     int64(getEnvInt("NODE_ID", 1)),
		RunTimeout: getEnvDuration("RUN_TIMEOUT", 0),
		PromptsDir: getEnv("PROMPTS_DIR", ""),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", "sqlite://data/app.db"),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),

			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			SlowQuery:       getEnvDuration("DB_SLOW_QUERY", 500*time.Millisecond),
		},
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "verdict"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("VERDICT_ENV", "development"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		Pipeline: PipelineConfig{
			RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStream:    getEnv("REDIS_STREAM", "verdict_evaluations"),
			RedisGroup:     getEnv("REDIS_CONSUMER_GROUP", "verdict_group"),
			RedisDLQStream: getEnv("REDIS_DLQ_STREAM", "verdict_evaluations_dlq"),
			RedisConsumer:  getEnv("REDIS_CONSUMER_NAME", "api-server"),
			RedisMaxLen:    int64(getEnvInt("REDIS_STREAM_MAXLEN", 100000)),
		},
		AnalysisLLM: LLMConfig{
			Provider:    getEnv("ANALYSIS_LLM_PROVIDER", "openai"),
			APIKey:      getEnv("ANALYSIS_LLM_API_KEY", openAIKey),
			BaseURL:     getEnv("ANALYSIS_LLM_BASE_URL", ""),
			Model:       getEnv("ANALYSIS_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvInt("ANALYSIS_LLM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("ANALYSIS_LLM_TEMPERATURE", 0),
		},
		DecisionLLM: LLMConfig{
			Provider:    getEnv("DECISION_LLM_PROVIDER", "openai"),
			APIKey:      getEnv("DECISION_LLM_API_KEY", openAIKey),
			BaseURL:     getEnv("DECISION_LLM_BASE_URL", ""),
			Model:       getEnv("DECISION_LLM_MODEL", "gpt-4o"),
			MaxTokens:   getEnvInt("DECISION_LLM_MAX_TOKENS", 2000),
			Temperature: getEnvFloat("DECISION_LLM_TEMPERATURE", 0),
		},
		Embedding: EmbeddingConfig{
			APIKey:  getEnv("EMBEDDING_API_KEY", openAIKey),
			BaseURL: getEnv("EMBEDDING_BASE_URL", ""),
			Model:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Search: SearchConfig{
			TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),
			BaseURL:      getEnv("TAVILY_BASE_URL", "https://api.tavily.com"),
			MaxResults:   getEnvInt("SEARCH_MAX_RESULTS", 5),
			Depth:        getEnv("SEARCH_DEPTH", "advanced"),
		},
		Typesense: TypesenseConfig{
			URL:        getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:     getEnv("TYPESENSE_API_KEY", ""),
			Collection: getEnv("TYPESENSE_COLLECTION", "company_knowledge"),
		},
		Retrieval: RetrievalConfig{
			TopK:           getEnvInt("RAG_TOP_K", 3),
			ScoreThreshold: getEnvFloat("RAG_SCORE_THRESHOLD", 0.5),
			DocsDir:        getEnv("RAG_DOCS_DIR", "data/company_docs"),
			ChunkSize:      getEnvInt("RAG_CHUNK_SIZE", 1000),
			ChunkOverlap:   getEnvInt("RAG_CHUNK_OVERLAP", 200),
		},
		Resilience: ResilienceConfig{
			MaxRetries:    getEnvInt("MAX_RETRIES", 3),
			InitialDelay:  getEnvDuration("RETRY_INITIAL_DELAY", time.Second),
			BackoffFactor: getEnvFloat("RETRY_BACKOFF_FACTOR", 2.0),
			CacheEnabled:  getEnvBool("ENABLE_CACHE", true),
			CacheTTL:      getEnvDuration("CACHE_TTL", time.Hour),
			RedisCache:    getEnvBool("REDIS_CACHE", false),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		},
	}

	if !cfg.AnalysisLLM.Enabled() || !cfg.DecisionLLM.Enabled() {
		return Config{}, fmt.Errorf("OPENAI_API_KEY (or ANALYSIS_LLM_API_KEY and DECISION_LLM_API_KEY) is required")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c EmbeddingConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c SearchConfig) Enabled() bool {
	return c.TavilyAPIKey != ""
}

func (c TypesenseConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

// EffectiveCacheTTL is the TTL handed to cached calls; zero disables caching.
func (c ResilienceConfig) EffectiveCacheTTL() time.Duration {
	if !c.CacheEnabled {
		return 0
	}
	return c.CacheTTL
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
