// Package validator checks request payloads before they reach use cases.
package validator

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/entity"
)

// AllowedExtensions lists the document formats the loader understands.
var AllowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".docx": true,
}

type Validator struct {
	validate      *validator.Validate
	maxUploadSize int64
}

func New(cfg config.IngestConfig) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v, maxUploadSize: cfg.MaxUploadSize}
}

// ValidateQuery trims the question and checks the request. Failures wrap
// entity.ErrInvalidQuery.
func (v *Validator) ValidateQuery(req *entity.QueryRequest) error {
	req.Question = strings.TrimSpace(req.Question)
	if err := v.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrInvalidQuery, describe(err))
	}
	return nil
}

func (v *Validator) ValidateDocument(doc *entity.Document) error {
	doc.ID = strings.TrimSpace(doc.ID)
	if strings.TrimSpace(doc.Text) == "" {
		doc.Text = ""
	}
	if err := v.validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrInvalidDocument, describe(err))
	}
	return nil
}

// ValidateUpload checks the extension and size of an uploaded document.
func (v *Validator) ValidateUpload(fh *multipart.FileHeader) error {
	if fh == nil {
		return fmt.Errorf("%w: file", entity.ErrMissingField)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !AllowedExtensions[ext] {
		return fmt.Errorf("%w: %s (allowed: txt, md, pdf, docx)", entity.ErrUnsupportedFile, ext)
	}
	if v.maxUploadSize > 0 && fh.Size > v.maxUploadSize {
		return fmt.Errorf("%w: file '%s' is %d bytes (max %d)", entity.ErrInvalidParameter, fh.Filename, fh.Size, v.maxUploadSize)
	}
	return nil
}

// describe turns validator errors into field-level sentinel errors.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return fmt.Errorf("%w: %s", entity.ErrMissingField, fe.Namespace())
	}
	if fe.Param() != "" {
		return fmt.Errorf("%w: %s must satisfy %s=%s", entity.ErrInvalidParameter, fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%w: %s must satisfy %s", entity.ErrInvalidParameter, fe.Namespace(), fe.Tag())
}

// SanitizeFilename sanitizes a filename for use as a document source.
func SanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	replacer := strings.NewReplacer(
		" ", "_",
		"(", "",
		")", "",
		"[", "",
		"]", "",
		"{", "",
		"}", "",
	)
	return replacer.Replace(filename)
}
