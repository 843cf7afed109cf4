package formatter

import (
	"bytes"
	"strings"

	"github.com/unidoc/unioffice/document"
)

const (
	docxContentType   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	docxFileExtension = ".docx"
)

type DOCXFormatter struct{}

func NewDOCXFormatter() *DOCXFormatter {
	return &DOCXFormatter{}
}

func (df *DOCXFormatter) Format(doc Document) ([]byte, error) {
	d := document.New()
	defer d.Close()

	titlePar := d.AddParagraph()
	titlePar.SetStyle("Title")
	titlePar.AddRun().AddText(doc.Title)

	for _, s := range doc.Sections {
		if s.Heading != "" {
			h := d.AddParagraph()
			h.SetStyle("Heading1")
			h.AddRun().AddText(s.Heading)
		}
		for _, para := range splitParagraphs(s.Body) {
			d.AddParagraph().AddRun().AddText(para)
		}
		for _, item := range s.Items {
			p := d.AddParagraph()
			p.SetStyle("ListParagraph")
			p.AddRun().AddText("• " + item)
		}
	}

	var buf bytes.Buffer
	if err := d.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (df *DOCXFormatter) ContentType() string {
	return docxContentType
}

func (df *DOCXFormatter) FileExtension() string {
	return docxFileExtension
}

func splitParagraphs(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimRight(line, " \t\r"); line != "" {
			out = append(out, line)
		}
	}
	return out
}
