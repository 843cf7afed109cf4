package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/telegram/handlers"
	"github.com/futig/compliance-rag/internal/telegram/middleware"
	"github.com/futig/compliance-rag/internal/telegram/render"
)

// Bot represents the Telegram bot
type Bot struct {
	client      *tgbotapi.BotAPI
	api         handlers.API
	cfg         *config.TelegramConfig
	handlers    map[string]handlers.Handler
	sender      *handlers.MessageSender
	release     func(ctx context.Context) error
	logger      *zap.Logger
	loggingMW   *middleware.LoggingMiddleware
	recoveryMW  *middleware.RecoveryMiddleware
	rateLimitMW *middleware.RateLimiterMiddleware
	updatesChan tgbotapi.UpdatesChannel
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// New authorizes the bot token. release runs after the last handler has
// finished during Stop and may be nil.
func New(cfg *config.TelegramConfig, release func(ctx context.Context) error, logger *zap.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}
	client.Debug = false

	logger.Info("telegram bot authorized",
		zap.String("username", client.Self.UserName),
		zap.Int64("id", client.Self.ID),
	)

	b := newBot(client, cfg, release, logger)
	b.client = client
	return b, nil
}

func newBot(api handlers.API, cfg *config.TelegramConfig, release func(ctx context.Context) error, logger *zap.Logger) *Bot {
	return &Bot{
		api:         api,
		cfg:         cfg,
		handlers:    make(map[string]handlers.Handler),
		sender:      handlers.NewMessageSender(api, logger),
		release:     release,
		logger:      logger,
		loggingMW:   middleware.NewLoggingMiddleware(logger),
		recoveryMW:  middleware.NewRecoveryMiddleware(logger, api),
		rateLimitMW: middleware.NewRateLimiterMiddleware(cfg.RateLimitPerMinute, cfg.RateLimitBurst, logger, api),
		stopChan:    make(chan struct{}),
	}
}

// Start starts the bot
func (b *Bot) Start(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("bot is not connected to telegram")
	}
	b.logger.Info("starting telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.UpdateTimeout
	b.updatesChan = b.client.GetUpdatesChan(u)

	ctx = ctxzap.ToContext(ctx, b.logger)
	go b.processUpdates(ctx)

	b.logger.Info("telegram bot started successfully")
	return nil
}

// Stop waits for active handlers, bounded by the shutdown timeout, then
// releases the pipeline.
func (b *Bot) Stop() error {
	b.logger.Info("stopping telegram bot")

	close(b.stopChan)
	if b.client != nil {
		b.client.StopReceivingUpdates()
	}
	b.rateLimitMW.Stop()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	shutdownTimeout := time.Duration(b.cfg.ShutdownTimeout) * time.Second
	var err error
	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(shutdownTimeout):
		b.logger.Warn("shutdown timeout exceeded, some handlers may not have completed",
			zap.Duration("timeout", shutdownTimeout),
		)
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	if b.release != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if releaseErr := b.release(ctx); releaseErr != nil {
			b.logger.Error("failed to release pipeline", zap.Error(releaseErr))
			if err == nil {
				err = releaseErr
			}
		}
	}

	if err == nil {
		b.logger.Info("telegram bot stopped successfully")
	}
	return err
}

// processUpdates processes incoming updates
func (b *Bot) processUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			ctxzap.Info(ctx, "context cancelled, stopping update processing")
			return
		case <-b.stopChan:
			ctxzap.Info(ctx, "stop signal received, stopping update processing")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func(u tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdateWithMiddleware(ctx, u)
			}(update)
		}
	}
}

// handleUpdateWithMiddleware runs rate limiting, then logging, then panic
// recovery around the handler.
func (b *Bot) handleUpdateWithMiddleware(ctx context.Context, update tgbotapi.Update) {
	b.rateLimitMW.Handle(update, func(u tgbotapi.Update) {
		b.loggingMW.Handle(u, func(u2 tgbotapi.Update) {
			b.recoveryMW.Handle(u2, func(u3 tgbotapi.Update) {
				b.handleUpdate(ctx, u3)
			})
		})
	})
}

// handleUpdate routes update to appropriate handler
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage handles incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	ctx = ctxzap.ToContext(ctx, ctxzap.Extract(ctx).With(
		zap.Int64("user_id", message.From.ID),
		zap.Int64("chat_id", message.Chat.ID),
	))

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	b.dispatch(ctx, handlers.HandlerStateQuestion, &handlers.Message{
		ChatID:    message.Chat.ID,
		UserID:    message.From.ID,
		MessageID: message.MessageID,
		Text:      message.Text,
	})
}

// handleCommand handles bot commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()

	ctxzap.Info(ctx, "command received", zap.String("command", command))

	switch command {
	case "start":
		b.sender.Send(message.Chat.ID, render.MsgWelcome, nil)
	case "help":
		b.sender.Send(message.Chat.ID, render.MsgHelp, nil)
	case "ask":
		b.dispatch(ctx, handlers.HandlerStateQuestion, &handlers.Message{
			ChatID:    message.Chat.ID,
			UserID:    message.From.ID,
			MessageID: message.MessageID,
			Text:      message.CommandArguments(),
		})
	default:
		b.sender.Send(message.Chat.ID, render.MsgUnknownCommand, nil)
	}
}

// handleCallbackQuery handles callback button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		b.sender.AnswerCallback(query.ID, render.MsgDetailsExpired)
		return
	}

	ctxzap.Info(ctx, "callback query received",
		zap.String("data", query.Data),
		zap.Int64("user_id", query.From.ID),
	)

	b.dispatch(ctx, handlers.HandlerStateCallback, &handlers.Message{
		ChatID:       query.Message.Chat.ID,
		UserID:       query.From.ID,
		MessageID:    query.Message.MessageID,
		CallbackData: query.Data,
		CallbackID:   query.ID,
	})
}

func (b *Bot) dispatch(ctx context.Context, state string, msg *handlers.Message) {
	handler, exists := b.handlers[state]
	if !exists {
		ctxzap.Warn(ctx, "no handler registered", zap.String("state", state))
		b.sender.Send(msg.ChatID, render.ErrGeneric, nil)
		return
	}

	if err := handler.Handle(ctx, msg); err != nil {
		ctxzap.Error(ctx, "handler error",
			zap.Error(err),
			zap.String("state", state),
		)
		b.sender.Send(msg.ChatID, render.ErrGeneric, nil)
	}
}

// RegisterHandler registers a handler for a state
func (b *Bot) RegisterHandler(handler handlers.Handler) {
	state := handler.GetState()

	if !handlers.IsValidState(state) {
		b.logger.Fatal("invalid handler state",
			zap.String("state", state),
		)
	}

	b.handlers[state] = handler
	b.logger.Info("handler registered",
		zap.String("state", state),
	)
}

// GetAPI returns the bot API instance (for handlers)
func (b *Bot) GetAPI() handlers.API {
	return b.api
}
