package convert

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CommandConverter shells out to pdftotext for PDFs and tesseract for
// images. Both commands run with a hard timeout; a hung converter must not
// hold a worker slot forever.
type CommandConverter struct {
	pdftotextPath string
	tesseractPath string
	timeout       time.Duration
	maxPages      int
	logger        zerolog.Logger
}

// CommandConfig holds subprocess converter settings.
type CommandConfig struct {
	PdftotextPath string
	TesseractPath string
	Timeout       time.Duration
	MaxPages      int
}

// NewCommandConverter creates a subprocess-backed converter.
func NewCommandConverter(cfg CommandConfig, logger zerolog.Logger) *CommandConverter {
	if cfg.PdftotextPath == "" {
		cfg.PdftotextPath = "pdftotext"
	}
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &CommandConverter{
		pdftotextPath: cfg.PdftotextPath,
		tesseractPath: cfg.TesseractPath,
		timeout:       cfg.Timeout,
		maxPages:      cfg.MaxPages,
		logger:        logger,
	}
}

// Convert dispatches on the declared content type. PDFs produce text and
// html; images go through OCR and additionally produce a searchable PDF.
func (c *CommandConverter) Convert(ctx context.Context, inputPath, contentType string) (map[string]string, error) {
	switch {
	case contentType == "application/pdf":
		pages, err := PreflightPDF(inputPath)
		if err != nil {
			return nil, err
		}
		return c.convertPDF(ctx, inputPath, min(pages, c.maxPages))
	case isImage(contentType):
		return c.convertImage(ctx, inputPath)
	default:
		return nil, conversionErrorf(nil, "file is not an image or PDF (%s)", contentType)
	}
}

// convertPDF runs pdftotext twice: plain text, then html with layout boxes.
// Only the first lastPage pages are converted.
func (c *CommandConverter) convertPDF(ctx context.Context, inputPath string, lastPage int) (map[string]string, error) {
	outputs := make(map[string]string, 2)
	for _, kind := range []string{KindText, KindHTML} {
		outPath := replaceExt(inputPath, ExtForKind(kind))

		args := []string{}
		if kind == KindHTML {
			args = append(args, "-bbox-layout")
		}
		args = append(args, "-f", "1", "-l", strconv.Itoa(lastPage), inputPath, outPath)

		if err := c.runCommand(ctx, c.pdftotextPath, args...); err != nil {
			return nil, err
		}
		outputs[kind] = outPath
	}
	return outputs, nil
}

// convertImage runs tesseract once; it emits all three artifacts itself.
// Tesseract appends the extensions to the output base name.
func (c *CommandConverter) convertImage(ctx context.Context, inputPath string) (map[string]string, error) {
	outBase := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))

	err := c.runCommand(ctx, c.tesseractPath, inputPath, outBase, "pdf", "hocr", "txt")
	if err != nil {
		return nil, err
	}

	outputs := map[string]string{
		KindText:          outBase + ".txt",
		KindSearchablePDF: outBase + ".pdf",
		KindHTML:          outBase + ".hocr",
	}
	for kind, path := range outputs {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, conversionErrorf(statErr, "ocr produced no %s output", kind)
		}
	}
	return outputs, nil
}

// runCommand executes one subprocess with the configured timeout. Stderr is
// folded into the error message since that is where both tools report their
// diagnostics.
func (c *CommandConverter) runCommand(ctx context.Context, name string, args ...string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug().Str("command", name).Strs("args", args).Msg("running converter command")

	cmd := exec.CommandContext(cmdCtx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return conversionErrorf(err, "command %s timed out after %s", name, c.timeout)
	}

	detail := strings.TrimSpace(string(output))
	if len(detail) > 1024 {
		detail = detail[:1024]
	}
	if detail == "" {
		detail = err.Error()
	}
	return conversionErrorf(err, "command %s failed: %s", name, detail)
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
