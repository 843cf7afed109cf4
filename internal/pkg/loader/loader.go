// Package loader extracts plain text from document files.
package loader

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/unidoc/unioffice/document"

	"github.com/futig/compliance-rag/internal/entity"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentID derives a stable id from a file name: lowercased stem with
// runs of other characters replaced by "-".
func DocumentID(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(stem), "-"), "-")
}

// Title turns a file name into a human-readable title.
func Title(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return strings.Join(strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
}

// Supported reports whether the extension of filename can be loaded.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".pdf", ".docx":
		return true
	default:
		return false
	}
}

// Parse extracts text from file content according to the file extension.
func Parse(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", entity.ErrInvalidDocument, filename)
		}
		return strings.TrimPrefix(string(data), "\uFEFF"), nil
	case ".pdf":
		return parsePDF(data)
	case ".docx":
		return parseDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", entity.ErrUnsupportedFile, filepath.Ext(filename))
	}
}

func parsePDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse pdf: %w", entity.ErrInvalidDocument, err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func parseDOCX(data []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parse docx: %w", entity.ErrInvalidDocument, err)
	}
	defer doc.Close()

	var paragraphs []string
	for _, p := range doc.Paragraphs() {
		var sb strings.Builder
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// LoadFile reads a document from disk. Id, title and source come from the path.
func LoadFile(path string) (*entity.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return FromBytes(path, data)
}

// FromBytes builds a document from file content.
func FromBytes(filename string, data []byte) (*entity.Document, error) {
	text, err := Parse(filename, data)
	if err != nil {
		return nil, err
	}
	return &entity.Document{
		ID:     DocumentID(filename),
		Title:  Title(filename),
		Text:   text,
		Source: filepath.Base(filename),
	}, nil
}

// LoadDir loads every supported file under root, ordered by path. Files
// that fail to load are reported in errs and skipped.
func LoadDir(root string) (docs []*entity.Document, errs []error) {
	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, []error{fmt.Errorf("walk %s: %w", root, walkErr)}
	}

	sort.Strings(paths)
	for _, p := range paths {
		doc, err := LoadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs
}
