package evaluate

import (
	"fmt"

	"github.com/futig/compliance-rag/internal/pkg/formatter"
)

const sampleResults = 3

// Document lays the report out for the formatter package.
func (r *Report) Document() formatter.Document {
	summary := formatter.Section{Heading: "Summary", Items: []string{
		fmt.Sprintf("Questions: %d", r.TotalQuestions),
		fmt.Sprintf("Succeeded: %d (%.0f%%)", r.Succeeded, percent(r.Succeeded, r.TotalQuestions)),
		fmt.Sprintf("Insufficient context: %d", r.Insufficient),
		fmt.Sprintf("Average keyword recall: %.2f", r.AvgRecall),
		fmt.Sprintf("Average citations: %.2f", r.AvgCitations),
		fmt.Sprintf("Total time: %.2fs, average per question: %.2fs", r.ElapsedSeconds, r.AvgElapsedSecs),
	}}
	if r.Model != "" {
		summary.Items = append(summary.Items, "Model: "+r.Model)
	}

	categories := formatter.Section{Heading: "By category"}
	for _, c := range r.Categories {
		categories.Items = append(categories.Items, fmt.Sprintf("%s: %d questions, %d succeeded, recall %.2f, %.2fs avg",
			c.Category, c.Questions, c.Succeeded, c.AvgRecall, c.AvgElapsedSecs))
	}

	doc := formatter.Document{
		Title:    "RAG evaluation report",
		Sections: []formatter.Section{summary, categories},
	}

	for i, res := range r.Results {
		if i == sampleResults {
			break
		}
		s := formatter.Section{
			Heading: fmt.Sprintf("Example %d: %s", i+1, res.Category),
			Body:    fmt.Sprintf("Q: %s\n\nA: %s", res.Question, res.GeneratedAnswer),
			Items: []string{
				fmt.Sprintf("Sources: %d", len(res.Sources)),
				fmt.Sprintf("Keyword recall: %.2f", res.KeywordRecall),
			},
		}
		if !res.Success {
			s.Items = append(s.Items, "Error: "+string(res.ErrorKind))
		}
		doc.Sections = append(doc.Sections, s)
	}
	return doc
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}
