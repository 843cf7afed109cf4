package builder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/api"
	documentapi "github.com/futig/compliance-rag/internal/api/document"
	"github.com/futig/compliance-rag/internal/api/middleware"
	queryapi "github.com/futig/compliance-rag/internal/api/query"
	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/repository"
	"github.com/futig/compliance-rag/internal/telegram"
	"github.com/futig/compliance-rag/internal/telegram/state"
)

func Build() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building application",
		zap.String("environment", cfg.Environment),
		zap.String("server_addr", cfg.ServerAddr),
	)

	pipeline, err := buildPipeline(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	// Setup API handlers
	queryHandler := queryapi.NewHandler(pipeline.Answers, pipeline.Validator, pipeline.Formatters)
	documentHandler := documentapi.NewHandler(pipeline.Ingester, cfg.IngestCfg, pipeline.Validator)
	logger.Info("API handlers initialized")

	router := api.SetupRouter(queryHandler, documentHandler, pipeline.Access, api.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Identity: middleware.IdentityConfig{
			Secret:          cfg.JWTSecret,
			TrustUserHeader: cfg.TrustUserHeader,
		},
	}, logger)
	logger.Info("HTTP router configured")

	// Writes must outlive the slowest query the router allows.
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Application built successfully",
		zap.String("environment", cfg.Environment),
	)

	return &App{
		server:   server,
		pipeline: pipeline,
		logger:   logger,
	}, nil
}

// BuildTelegramBot creates and initializes the Telegram bot
func BuildTelegramBot() (telegram.Bot, *config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building Telegram bot",
		zap.String("environment", cfg.Environment),
	)

	pipeline, err := buildPipeline(context.Background(), cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	states, err := setupTelegramState(context.Background(), cfg.TelegramCfg, pipeline.DB, logger)
	if err != nil {
		_ = pipeline.Close(context.Background())
		return nil, nil, nil, err
	}

	bot, err := telegram.NewBot(&cfg.TelegramCfg, pipeline.Answers, states, pipeline.Close, logger)
	if err != nil {
		_ = pipeline.Close(context.Background())
		return nil, nil, nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	logger.Info("Telegram bot built successfully",
		zap.String("environment", cfg.Environment),
	)

	return bot, cfg, logger, nil
}

// BackendFields describes the configured index, model and storage backends.
func BackendFields(cfg *config.Config) []zap.Field {
	embeddingModel := cfg.EmbeddingCfg.Provider + "/" + cfg.EmbeddingCfg.Model
	generationModel := cfg.GenerationCfg.Provider + "/" + cfg.GenerationCfg.Model
	if cfg.EnableMocks {
		embeddingModel, generationModel = "mock", "mock"
	}
	return []zap.Field{
		zap.String("index_backend", cfg.IndexCfg.Backend),
		zap.String("embedding_model", embeddingModel),
		zap.String("generation_model", generationModel),
		zap.String("registry_backend", cfg.RegistryBackend),
		zap.String("audit_sink", cfg.AuditCfg.Sink),
		zap.String("telegram_state", cfg.TelegramCfg.StateBackend),
	}
}

func setupTelegramState(ctx context.Context, cfg config.TelegramConfig, db *pgxpool.Pool, logger *zap.Logger) (state.Storage, error) {
	if cfg.StateBackend != "postgres" {
		return state.NewMemoryStorage(cfg.StateTTL), nil
	}
	if db == nil {
		return nil, fmt.Errorf("telegram state backend postgres requires a database")
	}

	store := repository.NewTelegramAnswerPostgres(db, cfg.StateTTL)
	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		return nil, fmt.Errorf("clean telegram state: %w", err)
	}
	logger.Info("telegram state loaded from postgres",
		zap.Int64("expired_removed", removed),
		zap.Duration("ttl", cfg.StateTTL),
	)
	return store, nil
}
