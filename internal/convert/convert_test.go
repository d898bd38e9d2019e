package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtForKind(t *testing.T) {
	assert.Equal(t, ".txt", ExtForKind(KindText))
	assert.Equal(t, ".html", ExtForKind(KindHTML))
	assert.Equal(t, ".pdf", ExtForKind(KindSearchablePDF))
	assert.Equal(t, "", ExtForKind("bogus"))
}

func TestContentTypeForKind(t *testing.T) {
	assert.Equal(t, "text/plain", ContentTypeForKind(KindText))
	assert.Equal(t, "text/html", ContentTypeForKind(KindHTML))
	assert.Equal(t, "application/pdf", ContentTypeForKind(KindSearchablePDF))
	assert.Equal(t, "application/octet-stream", ContentTypeForKind("bogus"))
}

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, "/tmp/scan.txt", replaceExt("/tmp/scan.png", ".txt"))
	assert.Equal(t, "/tmp/report.html", replaceExt("/tmp/report.pdf", ".html"))
	assert.Equal(t, "/tmp/noext.txt", replaceExt("/tmp/noext", ".txt"))
}

func TestIsImage(t *testing.T) {
	assert.True(t, isImage("image/png"))
	assert.True(t, isImage("image/tiff"))
	assert.False(t, isImage("application/pdf"))
	assert.False(t, isImage(""))
}

func TestConversionError_Unwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := conversionErrorf(cause, "command %s failed", "tesseract")

	assert.Equal(t, "command tesseract failed", err.Error())
	assert.ErrorIs(t, err, cause)

	var convErr *ConversionError
	assert.ErrorAs(t, err, &convErr)
}

func TestConvert_RejectsUnsupportedType(t *testing.T) {
	c := NewCommandConverter(CommandConfig{}, zerolog.Nop())

	_, err := c.Convert(context.Background(), "/tmp/whatever.zip", "application/zip")
	require.Error(t, err)

	var convErr *ConversionError
	assert.ErrorAs(t, err, &convErr)
	assert.Contains(t, convErr.Message, "not an image or PDF")
}

func TestConvert_MissingOCRBinary(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(input, []byte("not really a png"), 0o644))

	c := NewCommandConverter(CommandConfig{
		TesseractPath: filepath.Join(dir, "no-such-tesseract"),
	}, zerolog.Nop())

	_, err := c.Convert(context.Background(), input, "image/png")
	require.Error(t, err)

	var convErr *ConversionError
	assert.ErrorAs(t, err, &convErr)
}

func TestPreflightPDF_RejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "fake.pdf")
	require.NoError(t, os.WriteFile(input, []byte("this is not a pdf"), 0o644))

	_, err := PreflightPDF(input)
	require.Error(t, err)

	var convErr *ConversionError
	assert.ErrorAs(t, err, &convErr)
}

func TestNewCommandConverter_Defaults(t *testing.T) {
	c := NewCommandConverter(CommandConfig{}, zerolog.Nop())
	assert.Equal(t, "pdftotext", c.pdftotextPath)
	assert.Equal(t, "tesseract", c.tesseractPath)
	assert.Equal(t, 10, c.maxPages)
	assert.Positive(t, c.timeout)
}
