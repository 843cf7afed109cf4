package formatter

import (
	"bytes"
	"fmt"
)

const (
	markdownContentType   = "text/markdown; charset=utf-8"
	markdownFileExtension = ".md"
)

type MarkdownFormatter struct{}

func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

func (mf *MarkdownFormatter) Format(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", doc.Title)
	for _, s := range doc.Sections {
		if s.Heading != "" {
			fmt.Fprintf(&buf, "\n## %s\n", s.Heading)
		}
		if s.Body != "" {
			fmt.Fprintf(&buf, "\n%s\n", s.Body)
		}
		if len(s.Items) > 0 {
			buf.WriteString("\n")
			for _, item := range s.Items {
				fmt.Fprintf(&buf, "- %s\n", item)
			}
		}
	}
	return buf.Bytes(), nil
}

func (mf *MarkdownFormatter) ContentType() string {
	return markdownContentType
}

func (mf *MarkdownFormatter) FileExtension() string {
	return markdownFileExtension
}
