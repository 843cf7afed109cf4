package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/usecase/evaluate"
)

type evaluateOptions struct {
	sample      int
	format      string
	outFile     string
	resultsFile string
	docsDir     string
}

func newEvaluateCommand(a *app) *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate <questions.json>",
		Short: "Run a question set through the pipeline and write a report",
		Long: `Reads a JSON array of {question, answer|expected_answer, category} items,
answers each question, and reports success, citations and keyword recall
against the expected answers, overall and per category.`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string, svc *Services) error {
			items, err := evaluate.LoadItems(args[0])
			if err != nil {
				return err
			}
			f, err := svc.Formatters.Create(entity.ResultFormat(opts.format))
			if err != nil {
				return err
			}
			if err := preload(cmd, svc, opts.docsDir); err != nil {
				return err
			}

			report, err := svc.Evaluator(a.user).Run(cmd.Context(), items, opts.sample)
			if err != nil {
				return err
			}

			data, err := f.Format(report.Document())
			if err != nil {
				return fmt.Errorf("format report: %w", err)
			}
			path := opts.outFile
			if path == "" {
				path = "evaluation_report." + f.FileExtension()
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}

			if opts.resultsFile != "" {
				out, err := os.Create(opts.resultsFile)
				if err != nil {
					return fmt.Errorf("create %s: %w", opts.resultsFile, err)
				}
				defer out.Close()
				if err := writeJSON(out, report); err != nil {
					return fmt.Errorf("write %s: %w", opts.resultsFile, err)
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Evaluated %d questions: %d succeeded, %d with insufficient context\n",
				report.TotalQuestions, report.Succeeded, report.Insufficient)
			fmt.Fprintf(w, "Average keyword recall %.1f%%, %.1f citations, %.2fs per question\n",
				report.AvgRecall*100, report.AvgCitations, report.AvgElapsedSecs)
			fmt.Fprintf(w, "Report written to %s\n", path)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&opts.sample, "sample", "n", 0, "evaluate only the first n questions (0 for all)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(entity.FormatMarkdown), "report format: markdown, pdf or docx")
	cmd.Flags().StringVarP(&opts.outFile, "out", "o", "", "report path (default evaluation_report.<ext>)")
	cmd.Flags().StringVar(&opts.resultsFile, "results", "", "also write per-question results as JSON")
	cmd.Flags().StringVar(&opts.docsDir, "docs", "", "ingest this directory before evaluating")
	return cmd
}
