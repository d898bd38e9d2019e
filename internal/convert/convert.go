// Package convert wraps the external document-to-text conversion routines.
// The conversion itself (Poppler, Tesseract) is a black box invoked as a
// subprocess; this package's job is translating every possible failure into
// a ConversionError value at the boundary so nothing else in the system ever
// sees a raw subprocess failure.
package convert

import (
	"context"
	"fmt"
	"strings"
)

// Output kinds produced by a conversion.
const (
	KindText          = "text"
	KindHTML          = "html"
	KindSearchablePDF = "searchable_pdf"
)

// ExtForKind maps an output kind to its file extension, with leading dot.
func ExtForKind(kind string) string {
	switch kind {
	case KindText:
		return ".txt"
	case KindHTML:
		return ".html"
	case KindSearchablePDF:
		return ".pdf"
	}
	return ""
}

// ContentTypeForKind maps an output kind to the MIME type its artifact is
// stored with.
func ContentTypeForKind(kind string) string {
	switch kind {
	case KindText:
		return "text/plain"
	case KindHTML:
		return "text/html"
	case KindSearchablePDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// ConversionError is the only error type Convert returns. Message is safe to
// store on the job record and show to a client.
type ConversionError struct {
	Message string
	cause   error
}

func (e *ConversionError) Error() string {
	return e.Message
}

func (e *ConversionError) Unwrap() error {
	return e.cause
}

func conversionErrorf(cause error, format string, args ...interface{}) *ConversionError {
	return &ConversionError{
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// Converter turns one local input file into local artifact files keyed by
// output kind.
type Converter interface {
	// Convert runs the conversion for the file at inputPath with the given
	// declared content type. On success the returned map has one local file
	// path per produced kind. Any failure is a *ConversionError.
	Convert(ctx context.Context, inputPath, contentType string) (map[string]string, error)
}

// isImage reports whether the declared type selects the OCR path.
func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
