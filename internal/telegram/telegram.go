package telegram

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/telegram/bot"
	"github.com/futig/compliance-rag/internal/telegram/handlers"
	"github.com/futig/compliance-rag/internal/telegram/keyboard"
	"github.com/futig/compliance-rag/internal/telegram/state"
)

// Bot is the main telegram bot interface
type Bot interface {
	Start(ctx context.Context) error
	Stop() error
}

// NewBot connects to telegram and registers the question handlers. states
// keeps answers for the Details button; release is called once the bot has
// stopped.
func NewBot(
	cfg *config.TelegramConfig,
	answers handlers.Answerer,
	states state.Storage,
	release func(ctx context.Context) error,
	logger *zap.Logger,
) (Bot, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	b, err := bot.New(cfg, release, logger)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	registerHandlers(b, answers, states, logger)

	logger.Info("telegram bot initialized successfully")

	return b, nil
}

func registerHandlers(b *bot.Bot, answers handlers.Answerer, storage state.Storage, logger *zap.Logger) {
	api := b.GetAPI()
	states := state.NewManager(storage)
	kb := keyboard.NewBuilder()

	b.RegisterHandler(handlers.NewQuestionHandler(api, answers, states, kb, logger))
	b.RegisterHandler(handlers.NewCallbackHandler(api, states, logger))

	logger.Info("telegram handlers registered",
		zap.Int("handler_count", 2),
	)
}
