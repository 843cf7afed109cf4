package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/chunker"
	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/index"
	"github.com/futig/compliance-rag/internal/integration/access"
	"github.com/futig/compliance-rag/internal/integration/audit"
	"github.com/futig/compliance-rag/internal/integration/embedding"
	"github.com/futig/compliance-rag/internal/integration/generation"
	"github.com/futig/compliance-rag/internal/integration/registry"
	"github.com/futig/compliance-rag/internal/pkg/cache"
	"github.com/futig/compliance-rag/internal/pkg/formatter"
	"github.com/futig/compliance-rag/internal/pkg/prompt"
	"github.com/futig/compliance-rag/internal/pkg/validator"
	"github.com/futig/compliance-rag/internal/pkg/workerpool"
	"github.com/futig/compliance-rag/internal/repository"
	"github.com/futig/compliance-rag/internal/usecase/answer"
	"github.com/futig/compliance-rag/internal/usecase/evaluate"
	"github.com/futig/compliance-rag/internal/usecase/ingest"
	"github.com/futig/compliance-rag/internal/usecase/retrieval"
)

// documentRegistry is what every registry backend provides.
type documentRegistry interface {
	ingest.Registry
	answer.ReferenceTracker
}

// Pipeline is the fully wired query and ingestion stack shared by the HTTP
// server, the CLI and the Telegram bot.
type Pipeline struct {
	Config     *config.Config
	Logger     *zap.Logger
	Access     *access.Checker
	Validator  *validator.Validator
	Formatters *formatter.Factory
	Answers    *answer.Usecase
	Ingester   *ingest.Usecase
	Workers    *workerpool.Pool
	// DB is nil unless a postgres backend is configured.
	DB *pgxpool.Pool

	closers []func(ctx context.Context) error
}

// NewEvaluator returns a batch evaluator that asks as the given user.
func (p *Pipeline) NewEvaluator(userID string) *evaluate.Usecase {
	identity := entity.AnonymousIdentity()
	if userID != "" {
		identity = entity.AuthenticatedIdentity(userID)
	}
	return evaluate.NewUsecase(p.Answers, p.Workers, identity, p.Config.RetrievalCfg.TopK)
}

// Close releases every resource in reverse order of acquisition.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) onClose(fn func(ctx context.Context) error) {
	p.closers = append(p.closers, fn)
}

// BuildPipeline loads the named environment and wires the pipeline.
func BuildPipeline(environment string) (*Pipeline, error) {
	cfg, err := config.Load(environment)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	return buildPipeline(context.Background(), cfg, logger)
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Pipeline, err error) {
	p := &Pipeline{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = p.Close(context.Background())
		}
	}()

	var db *pgxpool.Pool
	if cfg.NeedsDatabase() {
		db, err = setupDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("setup database: %w", err)
		}
		p.DB = db
		p.onClose(func(context.Context) error {
			logger.Info("closing database connections")
			db.Close()
			return nil
		})
	}

	vectorCache, err := p.setupCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var embedder embedding.Backend
	var generator generation.Backend
	if cfg.EnableMocks {
		logger.Info("using mock model backends")
		embedder = embedding.NewMockConnector(cfg.EmbeddingCfg.Dimension, logger)
		generator = generation.NewMockConnector(logger)
	} else {
		embedder = newEmbeddingBackend(cfg.EmbeddingCfg, logger)
		generator = newGenerationBackend(cfg.GenerationCfg, logger)
	}

	gateway := embedding.NewGateway(embedder, vectorCache, embedding.GatewayConfig{
		Dimension: cfg.EmbeddingCfg.Dimension,
		BatchSize: cfg.EmbeddingCfg.BatchSize,
		Retry:     cfg.EmbeddingCfg.Retry,
	})
	generationClient := generation.NewClient(generator, generation.ClientConfig{Retry: cfg.GenerationCfg.Retry})
	logger.Info("model backends initialized",
		zap.String("embedding_model", gateway.Model()),
		zap.String("generation_model", generationClient.Model()),
	)

	vectors, err := p.setupIndex(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	var docs documentRegistry
	switch cfg.RegistryBackend {
	case "postgres":
		docs = repository.NewDocumentPostgres(db)
	default:
		docs = registry.NewMemory()
	}

	sink, err := p.setupAudit(cfg, db, logger)
	if err != nil {
		return nil, err
	}

	p.Access, err = access.NewChecker(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("build access checker: %w", err)
	}

	p.Workers, err = workerpool.New("ingest", cfg.IngestCfg.Workers, logger)
	if err != nil {
		return nil, err
	}
	p.onClose(func(context.Context) error {
		return p.Workers.Release(10 * time.Second)
	})

	p.Validator = validator.New(cfg.IngestCfg)
	p.Formatters = formatter.NewFactory()

	retriever := retrieval.NewUsecase(gateway, vectors, docs, retrieval.Config{
		TopK:            cfg.RetrievalCfg.TopK,
		Overfetch:       cfg.RetrievalCfg.Overfetch,
		SimilarityFloor: cfg.RetrievalCfg.SimilarityFloor,
		ExcludeArchived: cfg.RetrievalCfg.ExcludeArchived,
		Retry:           cfg.IndexCfg.Retry,
	})

	p.Answers = answer.NewUsecase(p.Access, retriever, prompt.NewBuilder(nil), generationClient, docs, sink, answer.Config{
		QueryTimeout:    cfg.QueryTimeout,
		MaxPromptTokens: cfg.PromptCfg.MaxTokens,
		Generation: generation.Options{
			Temperature: cfg.GenerationCfg.Temperature,
			MaxTokens:   cfg.GenerationCfg.MaxTokens,
			Seed:        cfg.GenerationCfg.Seed,
		},
	})

	split := chunker.New(
		chunker.WithChunkSize(cfg.ChunkerCfg.Size),
		chunker.WithOverlap(cfg.ChunkerCfg.Overlap),
	)
	p.Ingester = ingest.NewUsecase(split, gateway, vectors, docs, p.Validator, p.Workers)

	logger.Info("pipeline initialized",
		zap.String("index_backend", cfg.IndexCfg.Backend),
		zap.String("registry_backend", cfg.RegistryBackend),
		zap.String("audit_sink", cfg.AuditCfg.Sink),
		zap.String("embedding_cache", cfg.EmbeddingCfg.Cache),
	)
	return p, nil
}

func (p *Pipeline) setupCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.VectorCache, error) {
	switch cfg.EmbeddingCfg.Cache {
	case "memory":
		return cache.NewMemory(cfg.EmbeddingCfg.CacheTTL), nil
	case "redis":
		client, err := setupRedis(ctx, cfg.RedisCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("setup embedding cache: %w", err)
		}
		p.onClose(func(context.Context) error { return client.Close() })
		return cache.NewRedis(client, cfg.RedisCfg.KeyPrefix, cfg.EmbeddingCfg.CacheTTL), nil
	default:
		return cache.Noop{}, nil
	}
}

func (p *Pipeline) setupIndex(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (index.VectorIndex, error) {
	dimension := cfg.EmbeddingCfg.Dimension
	switch cfg.IndexCfg.Backend {
	case "pgvector":
		return repository.NewChunkVectorPostgres(db, dimension), nil
	case "milvus":
		m, err := index.NewMilvus(ctx, cfg.MilvusCfg, dimension)
		if err != nil {
			return nil, fmt.Errorf("setup milvus index: %w", err)
		}
		p.onClose(m.Close)
		return m, nil
	default:
		return index.NewMemory(dimension), nil
	}
}

func (p *Pipeline) setupAudit(cfg *config.Config, db *pgxpool.Pool, logger *zap.Logger) (answer.AuditSink, error) {
	switch cfg.AuditCfg.Sink {
	case "postgres":
		return repository.NewAuditPostgres(db), nil
	case "jsonl":
		sink, err := audit.NewJSONLSink(cfg.AuditCfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		p.onClose(func(context.Context) error { return sink.Close() })
		return sink, nil
	default:
		return audit.NewLogSink(logger), nil
	}
}

func newEmbeddingBackend(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Backend {
	if cfg.Provider == "openai" {
		return embedding.NewOpenAIConnector(cfg)
	}
	return embedding.NewConnector(cfg, logger)
}

func newGenerationBackend(cfg config.GenerationConfig, logger *zap.Logger) generation.Backend {
	if cfg.Provider == "openai" {
		return generation.NewOpenAIConnector(cfg)
	}
	return generation.NewConnector(cfg, logger)
}
