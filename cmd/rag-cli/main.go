package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/futig/compliance-rag/internal/api/middleware"
	"github.com/futig/compliance-rag/internal/builder"
	"github.com/futig/compliance-rag/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(openServices)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func openServices(environment string) (*cli.Services, error) {
	p, err := builder.BuildPipeline(environment)
	if err != nil {
		return nil, err
	}

	var signToken func(string, time.Duration) (string, error)
	if secret := p.Config.JWTSecret; secret != "" {
		signToken = func(subject string, ttl time.Duration) (string, error) {
			return middleware.SignToken(secret, subject, ttl)
		}
	}

	return &cli.Services{
		Answers:  p.Answers,
		Ingester: p.Ingester,
		Evaluator: func(userID string) cli.Evaluator {
			return p.NewEvaluator(userID)
		},
		Formatters: p.Formatters,
		SignToken:  signToken,
		Close: func(ctx context.Context) error {
			err := p.Close(ctx)
			_ = p.Logger.Sync()
			return err
		},
	}, nil
}
