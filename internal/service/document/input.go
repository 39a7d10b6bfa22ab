package document

import (
	"strings"
	"unicode/utf8"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

const (
	maxTitleLen       = 500
	maxDescriptionLen = 5000
	maxFilenameLen    = 255
	maxTags           = 20
)

// UploadInput holds an uploaded file and the descriptors supplied with it.
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
	Title       string
	Description *string
	Category    string
	Tags        []string
	Metadata    map[string]any
}

// Validate checks all fields and collects all errors.
func (i UploadInput) Validate(maxBytes int64) error {
	var errs []domain.FieldError

	name := strings.TrimSpace(i.Filename)
	if name == "" {
		errs = append(errs, domain.FieldError{Field: "file", Message: "filename required"})
	}
	if utf8.RuneCountInString(name) > maxFilenameLen {
		errs = append(errs, domain.FieldError{Field: "file", Message: "filename too long"})
	}
	if strings.ContainsAny(name, "/\\") {
		errs = append(errs, domain.FieldError{Field: "file", Message: "filename must not contain a path"})
	}
	if len(i.Data) == 0 {
		errs = append(errs, domain.FieldError{Field: "file", Message: "empty file"})
	}
	if int64(len(i.Data)) > maxBytes {
		errs = append(errs, domain.FieldError{Field: "file", Message: "file too large"})
	}
	if utf8.RuneCountInString(strings.TrimSpace(i.Title)) > maxTitleLen {
		errs = append(errs, domain.FieldError{Field: "title", Message: "max 500 characters"})
	}
	if i.Description != nil && utf8.RuneCountInString(*i.Description) > maxDescriptionLen {
		errs = append(errs, domain.FieldError{Field: "description", Message: "max 5000 characters"})
	}
	if len(i.Tags) > maxTags {
		errs = append(errs, domain.FieldError{Field: "tags", Message: "max 20 tags"})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// trimOrNil trims whitespace. Returns nil if result is empty.
func trimOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
