package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/builder"
)

func main() {
	bot, cfg, logger, err := builder.BuildTelegramBot()
	if err != nil {
		log.Fatal("Failed to build telegram bot:", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting telegram bot", builder.BackendFields(cfg)...)
	if err := bot.Start(ctx); err != nil {
		logger.Error("telegram bot failed to start", zap.Error(err))
		_ = bot.Stop()
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("received shutdown signal, stopping telegram bot")
	if err := bot.Stop(); err != nil {
		logger.Error("error stopping bot", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("telegram bot stopped gracefully")
}
