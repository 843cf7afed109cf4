package formatter

import (
	"fmt"

	"github.com/futig/compliance-rag/internal/entity"
)

const answerTitle = "Compliance answer"

// AnswerDocument lays out an answer with its question, text and sources.
func AnswerDocument(a *entity.Answer) Document {
	doc := Document{
		Title: answerTitle,
		Sections: []Section{
			{Heading: "Question", Body: a.Question},
		},
	}

	if a.Success {
		doc.Sections = append(doc.Sections, Section{Heading: "Answer", Body: a.Text})
	} else {
		doc.Sections = append(doc.Sections, Section{
			Heading: "Answer unavailable",
			Body:    fmt.Sprintf("%s (%s)", a.Error, a.ErrorKind),
		})
	}

	if len(a.Citations) > 0 {
		sources := Section{Heading: "Sources"}
		for _, c := range a.Citations {
			title := c.DocumentTitle
			if title == "" {
				title = c.DocumentID
			}
			sources.Items = append(sources.Items,
				fmt.Sprintf("[Source %d] %s (%s, relevance %.2f)", c.Index, title, c.ChunkID, c.Score))
		}
		doc.Sections = append(doc.Sections, sources)
	}

	details := Section{Heading: "Details", Items: []string{
		fmt.Sprintf("Query ID: %s", a.QueryID),
		fmt.Sprintf("Response time: %.2fs", a.ElapsedSeconds),
	}}
	if a.Model != "" {
		details.Items = append(details.Items, fmt.Sprintf("Model: %s", a.Model))
	}
	doc.Sections = append(doc.Sections, details)
	return doc
}
