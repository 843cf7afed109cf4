// Package cli implements the rag-cli commands.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/formatter"
	"github.com/futig/compliance-rag/internal/usecase/evaluate"
	"github.com/futig/compliance-rag/internal/usecase/ingest"
)

type Answerer interface {
	AnswerQuery(ctx context.Context, q entity.Query) (*entity.Answer, error)
}

type Ingester interface {
	IngestBatch(ctx context.Context, docs []*entity.Document) []ingest.Result
	RemoveDocument(ctx context.Context, documentID string) (*entity.DeleteDocumentResponse, error)
	ListDocuments(ctx context.Context) ([]entity.DocumentMetadata, error)
}

type Evaluator interface {
	Run(ctx context.Context, items []evaluate.Item, sample int) (*evaluate.Report, error)
}

// Services is the pipeline as the commands see it.
type Services struct {
	Answers    Answerer
	Ingester   Ingester
	Evaluator  func(userID string) Evaluator
	Formatters *formatter.Factory
	Close      func(ctx context.Context) error

	// SignToken issues an API bearer token; nil when no secret is configured.
	SignToken func(subject string, ttl time.Duration) (string, error)
}

// ServiceFactory opens the pipeline for the named environment.
type ServiceFactory func(environment string) (*Services, error)

type app struct {
	open ServiceFactory
	env  string
	user string
}

// NewRootCommand builds the command tree. Each command opens the pipeline
// on start and closes it before returning.
func NewRootCommand(open ServiceFactory) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "rag-cli",
		Short: "Query and maintain the compliance knowledge base",
		Long: `rag-cli answers compliance questions from the indexed policy documents,
ingests and removes documents, and runs batch evaluations.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.env, "env", "local", "environment to load (local, prod, or custom)")
	root.PersistentFlags().StringVarP(&a.user, "user", "u", "", "user id to act as; empty is anonymous")

	root.AddCommand(
		newAskCommand(a),
		newIngestCommand(a),
		newDeleteCommand(a),
		newListCommand(a),
		newEvaluateCommand(a),
		newTokenCommand(a),
	)
	return root
}

func (a *app) identity() entity.Identity {
	if a.user == "" {
		return entity.AnonymousIdentity()
	}
	return entity.AuthenticatedIdentity(a.user)
}

// run opens the services for one command invocation.
func (a *app) run(fn func(cmd *cobra.Command, args []string, svc *Services) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if a.open == nil {
			return errors.New("pipeline is not configured")
		}
		svc, err := a.open(a.env)
		if err != nil {
			return err
		}
		defer func() {
			if svc.Close == nil {
				return
			}
			if closeErr := svc.Close(context.WithoutCancel(cmd.Context())); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, args, svc)
	}
}
