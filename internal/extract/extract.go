// Package extract turns PDF and PPTX documents into per-page plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/coursectx/internal/chunker"
)

var (
	// ErrUnsupportedType is returned for extensions other than pdf and pptx.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrParse is wrapped by every ParseError.
	ErrParse = errors.New("document could not be parsed")
)

// Type identifies a supported document format.
type Type string

const (
	TypePDF  Type = "pdf"
	TypePPTX Type = "pptx"
)

// SupportedExtensions lists the extensions Extract understands.
func SupportedExtensions() []string {
	return []string{string(TypePDF), string(TypePPTX)}
}

// ParseError reports a corrupt or unreadable document.
type ParseError struct {
	Filename string
	Type     Type
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Filename, e.Type, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// DetectType maps a filename's extension to a Type, case-insensitively.
func DetectType(filename string) (Type, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch Type(ext) {
	case TypePDF:
		return TypePDF, nil
	case TypePPTX:
		return TypePPTX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
}

// Extract returns the cleaned, non-empty pages of data. Page numbers start
// at 1 and keep counting across pages that yield no text.
func Extract(ctx context.Context, filename string, data []byte) ([]chunker.Page, error) {
	typ, err := DetectType(filename)
	if err != nil {
		return nil, err
	}

	var raw []string
	switch typ {
	case TypePDF:
		raw, err = pdfPages(ctx, data)
	case TypePPTX:
		raw, err = pptxSlides(ctx, data)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ParseError{Filename: filename, Type: typ, Err: err}
	}

	pages := make([]chunker.Page, 0, len(raw))
	for i, text := range raw {
		if text = Clean(text); text != "" {
			pages = append(pages, chunker.Page{Number: i + 1, Text: text})
		}
	}
	return pages, nil
}

// Clean collapses whitespace runs to single spaces and trims.
func Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
