package formatter

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futig/compliance-rag/internal/entity"
)

func sampleAnswer() *entity.Answer {
	return &entity.Answer{
		QueryID:  "q-1",
		Question: "What to do after a needlestick?",
		Text:     "Wash the wound [Source 1].\nReport it [Source 2].",
		Citations: []entity.Citation{
			{Index: 1, ChunkID: "needlestick_chunk_0", DocumentID: "needlestick", DocumentTitle: "Needlestick protocol", Score: 0.91},
			{Index: 2, ChunkID: "needlestick_chunk_2", DocumentID: "needlestick", Score: 0.75},
		},
		Success:        true,
		State:          entity.StateCompleted,
		ElapsedSeconds: 1.25,
		Model:          "llama3.2",
	}
}

func TestFactory_Create(t *testing.T) {
	f := NewFactory()
	for _, format := range []entity.ResultFormat{entity.FormatMarkdown, entity.FormatPDF, entity.FormatDOCX} {
		got, err := f.Create(format)
		require.NoError(t, err)
		assert.NotEmpty(t, got.ContentType())
	}
	_, err := f.Create(entity.FormatJSON)
	assert.ErrorIs(t, err, entity.ErrInvalidFormat)
}

func TestAnswerDocument(t *testing.T) {
	doc := AnswerDocument(sampleAnswer())
	require.Len(t, doc.Sections, 4)
	assert.Equal(t, "Sources", doc.Sections[2].Heading)
	assert.Equal(t, "[Source 1] Needlestick protocol (needlestick_chunk_0, relevance 0.91)", doc.Sections[2].Items[0])
	assert.Contains(t, doc.Sections[2].Items[1], "needlestick (needlestick_chunk_2")

	failed := sampleAnswer()
	failed.Success = false
	failed.Citations = nil
	failed.Error = "generation failed"
	failed.ErrorKind = entity.ErrorKindGenerationFailed
	doc = AnswerDocument(failed)
	assert.Equal(t, "Answer unavailable", doc.Sections[1].Heading)
	assert.Equal(t, "generation failed (GenerationFailed)", doc.Sections[1].Body)
	assert.Len(t, doc.Sections, 3)
}

func TestMarkdownFormatter(t *testing.T) {
	out, err := NewMarkdownFormatter().Format(AnswerDocument(sampleAnswer()))
	require.NoError(t, err)
	md := string(out)
	assert.True(t, strings.HasPrefix(md, "# Compliance answer\n"))
	assert.Contains(t, md, "## Question\n\nWhat to do after a needlestick?\n")
	assert.Contains(t, md, "- [Source 1] Needlestick protocol")
	assert.Contains(t, md, "- Model: llama3.2")
}

func TestPDFFormatter(t *testing.T) {
	out, err := NewPDFFormatter().Format(AnswerDocument(sampleAnswer()))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestDOCXFormatter(t *testing.T) {
	out, err := NewDOCXFormatter().Format(AnswerDocument(sampleAnswer()))
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "license") {
		t.Skip("unioffice license key not configured")
	}
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "word/document.xml")
}

func TestSplitParagraphs(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, splitParagraphs("one\n\n  \ntwo \r"))
}
