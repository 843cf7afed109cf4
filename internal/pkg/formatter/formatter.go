// Package formatter exports answers and reports as markdown, PDF or DOCX.
package formatter

import (
	"fmt"

	"github.com/futig/compliance-rag/internal/entity"
)

// Document is a format-neutral report: a title and ordered sections.
type Document struct {
	Title    string
	Sections []Section
}

// Section has an optional heading, free text and bullet items.
type Section struct {
	Heading string
	Body    string
	Items   []string
}

type Formatter interface {
	Format(doc Document) ([]byte, error)
	ContentType() string
	FileExtension() string
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(format entity.ResultFormat) (Formatter, error) {
	switch format {
	case entity.FormatMarkdown:
		return NewMarkdownFormatter(), nil
	case entity.FormatDOCX:
		return NewDOCXFormatter(), nil
	case entity.FormatPDF:
		return NewPDFFormatter(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", entity.ErrInvalidFormat, format)
	}
}
