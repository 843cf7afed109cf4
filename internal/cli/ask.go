package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/formatter"
)

type askOptions struct {
	topK              int
	maxClassification string
	documentTypes     []string
	asJSON            bool
	format            string
	outFile           string
	docsDir           string
}

func newAskCommand(a *app) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a compliance question with citations",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string, svc *Services) error {
			if err := preload(cmd, svc, opts.docsDir); err != nil {
				return err
			}

			q := entity.Query{
				Question: strings.Join(args, " "),
				Identity: a.identity(),
				TopK:     opts.topK,
			}
			if opts.maxClassification != "" {
				c, err := entity.ParseClassification(opts.maxClassification)
				if err != nil {
					return err
				}
				q.Filters.MaxClassification = c
			}
			q.Filters.DocumentTypes = opts.documentTypes

			ans, err := svc.Answers.AnswerQuery(cmd.Context(), q)
			if err != nil {
				return err
			}

			if opts.format != "" {
				return exportAnswer(cmd, svc, ans, opts)
			}
			if opts.asJSON {
				return writeJSON(cmd.OutOrStdout(), ans)
			}
			printAnswer(cmd.OutOrStdout(), ans)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "passages to retrieve (0 uses the configured default)")
	cmd.Flags().StringVar(&opts.maxClassification, "max-classification", "", "highest classification to search")
	cmd.Flags().StringSliceVar(&opts.documentTypes, "type", nil, "restrict to document types")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "output the answer as JSON")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "export as markdown, pdf or docx")
	cmd.Flags().StringVarP(&opts.outFile, "out", "o", "", "export file path (default answer.<ext>)")
	cmd.Flags().StringVar(&opts.docsDir, "docs", "", "ingest this directory before asking")
	return cmd
}

func printAnswer(out io.Writer, ans *entity.Answer) {
	fmt.Fprintln(out, strings.TrimSpace(ans.Text))
	if len(ans.Citations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, c := range ans.Citations {
			title := c.DocumentTitle
			if title == "" {
				title = c.DocumentID
			}
			fmt.Fprintf(out, "  [%d] %s (%s, score %.2f)\n", c.Index, title, c.DocumentID, c.Score)
		}
	}
	for _, w := range ans.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}

func exportAnswer(cmd *cobra.Command, svc *Services, ans *entity.Answer, opts *askOptions) error {
	f, err := svc.Formatters.Create(entity.ResultFormat(opts.format))
	if err != nil {
		return err
	}
	data, err := f.Format(formatter.AnswerDocument(ans))
	if err != nil {
		return fmt.Errorf("format answer: %w", err)
	}

	path := opts.outFile
	if path == "" {
		path = "answer." + f.FileExtension()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Answer written to %s\n", path)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
