package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	pkgRetry "github.com/futig/compliance-rag/internal/pkg/retry"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerAddr      string        `env:"SERVER_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	QueryTimeout    time.Duration `env:"QUERY_TIMEOUT" envDefault:"60s"`
	JWTSecret       string        `env:"JWT_SECRET"`
	TrustUserHeader bool          `env:"TRUST_USER_HEADER" envDefault:"false"`

	// Database configuration. Required only by postgres-backed components.
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConns          int           `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns          int           `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Pipeline configuration
	ChunkerCfg    ChunkerConfig    `envPrefix:"CHUNK_"`
	RetrievalCfg  RetrievalConfig  `envPrefix:"RETRIEVAL_"`
	PromptCfg     PromptConfig     `envPrefix:"PROMPT_"`
	EmbeddingCfg  EmbeddingConfig  `envPrefix:"EMBEDDING_"`
	GenerationCfg GenerationConfig `envPrefix:"GENERATION_"`

	// Storage backends
	IndexCfg        IndexConfig  `envPrefix:"INDEX_"`
	MilvusCfg       MilvusConfig `envPrefix:"MILVUS_"`
	RedisCfg        RedisConfig  `envPrefix:"REDIS_"`
	AuditCfg        AuditConfig  `envPrefix:"AUDIT_"`
	RegistryBackend string       `env:"REGISTRY_BACKEND" envDefault:"memory"`

	IngestCfg IngestConfig `envPrefix:"INGEST_"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Mock configuration
	EnableMocks bool `env:"ENABLE_MOCKS" envDefault:"false"`

	// Telegram bot configuration (optional)
	TelegramCfg TelegramConfig `envPrefix:"TELEGRAM_"`

	// Access policy (loaded from YAML file)
	AccessPolicyFile string `env:"ACCESS_POLICY_FILE" envDefault:"internal/config/access_policy.yaml"`
	Policy           *AccessPolicy

	// Environment (set from flag, not from env var)
	Environment string
}

type ChunkerConfig struct {
	Size    int `env:"SIZE" envDefault:"500"`
	Overlap int `env:"OVERLAP" envDefault:"50"`
}

type RetrievalConfig struct {
	TopK            int      `env:"TOP_K" envDefault:"5"`
	SimilarityFloor *float64 `env:"SIMILARITY_FLOOR"`
	Overfetch       int      `env:"OVERFETCH" envDefault:"3"`
	ExcludeArchived bool     `env:"EXCLUDE_ARCHIVED" envDefault:"true"`
}

type PromptConfig struct {
	MaxTokens int `env:"MAX_TOKENS" envDefault:"3000"`
}

type EmbeddingConfig struct {
	HTTPClientConfig
	Provider  string               `env:"PROVIDER" envDefault:"ollama"`
	Model     string               `env:"MODEL" envDefault:"nomic-embed-text"`
	Endpoint  string               `env:"ENDPOINT" envDefault:"/api/embed"`
	Dimension int                  `env:"DIMENSION" envDefault:"768"`
	BatchSize int                  `env:"BATCH_SIZE" envDefault:"32"`
	Cache     string               `env:"CACHE" envDefault:"memory"`
	CacheTTL  time.Duration        `env:"CACHE_TTL" envDefault:"24h"`
	Retry     pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

type GenerationConfig struct {
	HTTPClientConfig
	Provider    string               `env:"PROVIDER" envDefault:"ollama"`
	Model       string               `env:"MODEL" envDefault:"llama3.2"`
	Endpoint    string               `env:"ENDPOINT" envDefault:"/api/generate"`
	Temperature float64              `env:"TEMPERATURE" envDefault:"0.1"`
	MaxTokens   int                  `env:"MAX_TOKENS" envDefault:"500"`
	Seed        *int64               `env:"SEED"`
	Retry       pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

type HTTPClientConfig struct {
	RequestTimeout        time.Duration `env:"TIMEOUT" envDefault:"60s"`
	ConnTimeout           time.Duration `env:"CONN_TIMEOUT" envDefault:"5s"`
	KeepAlive             time.Duration `env:"KEEP_ALIVE" envDefault:"90s"`
	IdleConnTimeout       time.Duration `env:"IDLE_CONN_TIMEOUT" envDefault:"90s"`
	ResponseHeaderTimeout time.Duration `env:"RESPONSE_HEADER_TIMEOUT" envDefault:"60s"`
	MaxIdleConnsPerHost   int           `env:"MAX_IDLE_CONNS_PER_HOST" envDefault:"16"`
	InsecureSkipVerify    bool          `env:"INSECURE_SKIP_VERIFY" envDefault:"false"`
	Token                 string        `env:"TOKEN"`
	Url                   string        `env:"SERVICE_URL" envDefault:"http://localhost:11434"`
}

type IndexConfig struct {
	Backend string               `env:"BACKEND" envDefault:"memory"`
	Retry   pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

type MilvusConfig struct {
	Address    string `env:"ADDRESS" envDefault:"localhost:19530"`
	Username   string `env:"USERNAME"`
	Password   string `env:"PASSWORD"`
	DBName     string `env:"DB_NAME"`
	Collection string `env:"COLLECTION" envDefault:"regulatory_chunks"`
}

type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"emb:"`
}

type AuditConfig struct {
	Sink     string `env:"SINK" envDefault:"log"`
	FilePath string `env:"FILE_PATH" envDefault:"audit_log.jsonl"`
}

type IngestConfig struct {
	Workers       int   `env:"WORKERS" envDefault:"4"`
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"33554432"` // 32 MiB
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken           string `env:"BOT_TOKEN"`
	UpdateTimeout      int    `env:"UPDATE_TIMEOUT" envDefault:"60"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	RateLimitBurst     int    `env:"RATE_LIMIT_BURST" envDefault:"3"`
	ShutdownTimeout    int    `env:"SHUTDOWN_TIMEOUT" envDefault:"30"` // seconds

	StateBackend string        `env:"STATE_BACKEND" envDefault:"memory"`
	StateTTL     time.Duration `env:"STATE_TTL" envDefault:"30m"`
}

// LoadConfig reads the -env flag and loads the matching configuration.
func LoadConfig() (*Config, error) {
	envFlag := flag.String("env", "local", "Environment to run (local, prod, or custom)")
	flag.Parse()

	return Load(*envFlag)
}

// Load loads configuration for the named environment.
func Load(environment string) (*Config, error) {
	envFile := getEnvFile(environment)
	// Try to load env file, but don't fail if it's missing.
	// In containerized/prod environments variables are usually set externally.
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load %s file (this is ok if env vars are set externally): %v\n", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Environment = environment

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	policy, err := LoadAccessPolicy(cfg.AccessPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load access policy: %w", err)
	}
	cfg.Policy = policy

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if cfg.ChunkerCfg.Size < 1 {
		errors = append(errors, fmt.Sprintf("CHUNK_SIZE must be positive, got %d", cfg.ChunkerCfg.Size))
	}
	if cfg.ChunkerCfg.Overlap < 0 || cfg.ChunkerCfg.Overlap >= cfg.ChunkerCfg.Size {
		errors = append(errors, fmt.Sprintf("CHUNK_OVERLAP must be between 0 and CHUNK_SIZE-1, got %d", cfg.ChunkerCfg.Overlap))
	}
	if cfg.RetrievalCfg.TopK < 1 || cfg.RetrievalCfg.TopK > 50 {
		errors = append(errors, fmt.Sprintf("RETRIEVAL_TOP_K must be between 1 and 50, got %d", cfg.RetrievalCfg.TopK))
	}
	if cfg.RetrievalCfg.Overfetch < 1 {
		errors = append(errors, fmt.Sprintf("RETRIEVAL_OVERFETCH must be at least 1, got %d", cfg.RetrievalCfg.Overfetch))
	}
	if f := cfg.RetrievalCfg.SimilarityFloor; f != nil && (*f < -1 || *f > 1) {
		errors = append(errors, fmt.Sprintf("RETRIEVAL_SIMILARITY_FLOOR must be within [-1, 1], got %g", *f))
	}
	if cfg.PromptCfg.MaxTokens < 1 {
		errors = append(errors, fmt.Sprintf("PROMPT_MAX_TOKENS must be positive, got %d", cfg.PromptCfg.MaxTokens))
	}
	if cfg.EmbeddingCfg.Dimension < 1 {
		errors = append(errors, fmt.Sprintf("EMBEDDING_DIMENSION must be positive, got %d", cfg.EmbeddingCfg.Dimension))
	}
	if cfg.EmbeddingCfg.BatchSize < 1 {
		errors = append(errors, fmt.Sprintf("EMBEDDING_BATCH_SIZE must be positive, got %d", cfg.EmbeddingCfg.BatchSize))
	}
	if cfg.GenerationCfg.Temperature < 0 || cfg.GenerationCfg.Temperature > 2 {
		errors = append(errors, fmt.Sprintf("GENERATION_TEMPERATURE must be between 0 and 2, got %g", cfg.GenerationCfg.Temperature))
	}
	if cfg.GenerationCfg.MaxTokens < 1 {
		errors = append(errors, fmt.Sprintf("GENERATION_MAX_TOKENS must be positive, got %d", cfg.GenerationCfg.MaxTokens))
	}

	if budget := cfg.GenerationCfg.Retry.Budget(); budget >= cfg.QueryTimeout {
		errors = append(errors, fmt.Sprintf(
			"GENERATION_RETRY_ATTEMPTS x GENERATION_RETRY_TIMEOUT plus backoff (%s) must be below QUERY_TIMEOUT (%s)",
			budget, cfg.QueryTimeout))
	}

	if !oneOf(cfg.EmbeddingCfg.Provider, "ollama", "openai") {
		errors = append(errors, fmt.Sprintf("EMBEDDING_PROVIDER must be ollama or openai, got %q", cfg.EmbeddingCfg.Provider))
	}
	if !oneOf(cfg.GenerationCfg.Provider, "ollama", "openai") {
		errors = append(errors, fmt.Sprintf("GENERATION_PROVIDER must be ollama or openai, got %q", cfg.GenerationCfg.Provider))
	}
	if !oneOf(cfg.EmbeddingCfg.Cache, "none", "memory", "redis") {
		errors = append(errors, fmt.Sprintf("EMBEDDING_CACHE must be none, memory or redis, got %q", cfg.EmbeddingCfg.Cache))
	}
	if !oneOf(cfg.IndexCfg.Backend, "memory", "pgvector", "milvus") {
		errors = append(errors, fmt.Sprintf("INDEX_BACKEND must be memory, pgvector or milvus, got %q", cfg.IndexCfg.Backend))
	}
	if !oneOf(cfg.AuditCfg.Sink, "log", "jsonl", "postgres") {
		errors = append(errors, fmt.Sprintf("AUDIT_SINK must be log, jsonl or postgres, got %q", cfg.AuditCfg.Sink))
	}
	if !oneOf(cfg.RegistryBackend, "memory", "postgres") {
		errors = append(errors, fmt.Sprintf("REGISTRY_BACKEND must be memory or postgres, got %q", cfg.RegistryBackend))
	}

	if cfg.NeedsDatabase() && cfg.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when a postgres backend is selected")
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 200 {
		errors = append(errors, fmt.Sprintf("DB_MAX_CONNS must be between 1 and 200, got %d", cfg.DBMaxConns))
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		errors = append(errors, fmt.Sprintf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS(%d), got %d", cfg.DBMaxConns, cfg.DBMinConns))
	}

	if cfg.IngestCfg.Workers < 1 || cfg.IngestCfg.Workers > 64 {
		errors = append(errors, fmt.Sprintf("INGEST_WORKERS must be between 1 and 64, got %d", cfg.IngestCfg.Workers))
	}

	if cfg.TelegramCfg.RateLimitPerMinute < 1 || cfg.TelegramCfg.RateLimitPerMinute > 60 {
		errors = append(errors, fmt.Sprintf("TELEGRAM_RATE_LIMIT_PER_MINUTE must be between 1 and 60, got %d", cfg.TelegramCfg.RateLimitPerMinute))
	}
	if cfg.TelegramCfg.RateLimitBurst < 1 || cfg.TelegramCfg.RateLimitBurst > 20 {
		errors = append(errors, fmt.Sprintf("TELEGRAM_RATE_LIMIT_BURST must be between 1 and 20, got %d", cfg.TelegramCfg.RateLimitBurst))
	}
	if !oneOf(cfg.TelegramCfg.StateBackend, "memory", "postgres") {
		errors = append(errors, fmt.Sprintf("TELEGRAM_STATE_BACKEND must be memory or postgres, got %q", cfg.TelegramCfg.StateBackend))
	}
	if cfg.TelegramCfg.StateTTL <= 0 {
		errors = append(errors, "TELEGRAM_STATE_TTL must be positive")
	}
	if cfg.TelegramCfg.ShutdownTimeout < 1 || cfg.TelegramCfg.ShutdownTimeout > 300 {
		errors = append(errors, fmt.Sprintf("TELEGRAM_SHUTDOWN_TIMEOUT must be between 1 and 300 seconds, got %d", cfg.TelegramCfg.ShutdownTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// NeedsDatabase reports whether any configured backend lives in postgres.
func (c *Config) NeedsDatabase() bool {
	return c.IndexCfg.Backend == "pgvector" || c.AuditCfg.Sink == "postgres" || c.RegistryBackend == "postgres" ||
		c.TelegramCfg.StateBackend == "postgres"
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func getEnvFile(environment string) string {
	switch environment {
	case "prod", "production":
		return ".env.prod"
	case "local", "dev", "development":
		return ".env.local"
	default:
		return fmt.Sprintf(".env.%s", environment)
	}
}
