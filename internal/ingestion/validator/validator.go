// Package validator enforces size limits on incoming documents and returns
// per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
)

const (
	maxFields          = 64
	maxFieldNameLength = 128
	maxFieldValueBytes = 1 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s:%s", name, e.Fields[name]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateDocument checks field count, field names and value sizes.
func ValidateDocument(doc index.Document) error {
	errs := make(map[string]string)
	if len(doc) == 0 {
		errs["document"] = "at least one field is required"
	} else if len(doc) > maxFields {
		errs["document"] = fmt.Sprintf("at most %d fields are allowed", maxFields)
	}
	for name, value := range doc {
		key := name
		if key == "" {
			key = "(empty)"
		}
		switch {
		case strings.TrimSpace(name) == "":
			errs[key] = "field name must not be blank"
		case len(name) > maxFieldNameLength:
			errs[key] = fmt.Sprintf("field name must be at most %d bytes", maxFieldNameLength)
		case strings.ContainsAny(name, ":/ \t\n"):
			errs[key] = "field name must not contain ':', '/' or whitespace"
		case !utf8.ValidString(value):
			errs[key] = "value must be valid UTF-8"
		case len(value) > maxFieldValueBytes:
			errs[key] = fmt.Sprintf("value must be at most %d bytes", maxFieldValueBytes)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateBatch validates every document and prefixes failures with the
// document's position in the batch.
func ValidateBatch(docs []index.Document) error {
	if len(docs) == 0 {
		return &ValidationError{Fields: map[string]string{"documents": "batch must not be empty"}}
	}
	for i, doc := range docs {
		if err := ValidateDocument(doc); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
	}
	return nil
}
