package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/loader"
)

type ingestOptions struct {
	id             string
	title          string
	docType        string
	version        string
	classification string
}

func newIngestCommand(a *app) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Index documents from files or directories",
		Long: `Loads .txt, .md, .pdf and .docx files, chunks and embeds them, and replaces
any earlier version of the same document in the index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string, svc *Services) error {
			return ingestPaths(cmd.Context(), cmd.OutOrStdout(), svc, args, opts)
		}),
	}
	cmd.Flags().StringVar(&opts.id, "id", "", "document id (single file only)")
	cmd.Flags().StringVar(&opts.title, "title", "", "document title (single file only)")
	cmd.Flags().StringVar(&opts.docType, "type", "", "document type, e.g. policy or procedure")
	cmd.Flags().StringVar(&opts.version, "version", "", "document version")
	cmd.Flags().StringVar(&opts.classification, "classification", "", "public, internal or restricted")
	return cmd
}

// ingestPaths loads and indexes every document under paths. opts may be nil.
func ingestPaths(ctx context.Context, out io.Writer, svc *Services, paths []string, opts *ingestOptions) error {
	docs, loadErrs := loadPaths(paths)
	for _, err := range loadErrs {
		fmt.Fprintf(out, "  ✗ %v\n", err)
	}
	if len(docs) == 0 {
		if len(loadErrs) > 0 {
			return fmt.Errorf("no documents loaded: %w", errors.Join(loadErrs...))
		}
		return errors.New("no supported documents found")
	}

	if opts != nil {
		if err := opts.apply(docs); err != nil {
			return err
		}
	}

	failed := len(loadErrs)
	for _, r := range svc.Ingester.IngestBatch(ctx, docs) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "  ✗ %s: %v\n", r.DocumentID, r.Err)
			continue
		}
		action := "indexed"
		if r.Response.Replaced {
			action = "replaced"
		}
		fmt.Fprintf(out, "  ✓ %s %s (version %s, %d chunks)\n", r.DocumentID, action, r.Response.Version, r.Response.ChunkCount)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docs)+len(loadErrs))
	}
	return nil
}

func loadPaths(paths []string) ([]*entity.Document, []error) {
	var docs []*entity.Document
	var errs []error
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			loaded, loadErrs := loader.LoadDir(path)
			docs = append(docs, loaded...)
			errs = append(errs, loadErrs...)
			continue
		}
		doc, err := loader.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}

func (o *ingestOptions) apply(docs []*entity.Document) error {
	if (o.id != "" || o.title != "") && len(docs) != 1 {
		return errors.New("--id and --title need exactly one document")
	}

	var classification entity.Classification
	if o.classification != "" {
		c, err := entity.ParseClassification(o.classification)
		if err != nil {
			return err
		}
		classification = c
	}

	for _, doc := range docs {
		if o.id != "" {
			doc.ID = o.id
		}
		if o.title != "" {
			doc.Title = o.title
		}
		if o.docType != "" {
			doc.Type = o.docType
		}
		if o.version != "" {
			doc.Version = o.version
		}
		if classification != "" {
			doc.Classification = classification
		}
	}
	return nil
}

// preload indexes dir before a command runs, for in-memory backends.
// Progress goes to stderr so that stdout stays machine readable.
func preload(cmd *cobra.Command, svc *Services, dir string) error {
	if dir == "" {
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Loading documents from %s\n", dir)
	return ingestPaths(cmd.Context(), cmd.ErrOrStderr(), svc, []string{dir}, nil)
}
