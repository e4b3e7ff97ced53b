package extraction

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/ocr"
	"github.com/ivolkov/statement-ingest/internal/storage"
)

const (
	// maxPDFPages caps how many pages of a PDF are rendered and OCR'd.
	maxPDFPages = 10

	// renderDPI is the raster resolution passed to the converters.
	renderDPI = "150"
)

// TextExtractor turns an uploaded statement file into raw text.
type TextExtractor interface {
	// Extract fetches the file at uri and returns its extracted text.
	Extract(ctx context.Context, uri, mimeType string) (string, error)
}

// runner executes an external command and returns its stdout. It exists so
// tests can substitute the pdfinfo/pdftoppm/gs invocations.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Extractor is the text-extraction gateway: it downloads the statement file,
// rasterizes PDF pages with external converters, and runs each image through
// the injected OCR client.
type Extractor struct {
	storage  storage.Service
	detector ocr.TextDetector
	run      runner
}

// NewExtractor creates an extractor backed by real command execution.
func NewExtractor(st storage.Service, detector ocr.TextDetector) *Extractor {
	return &Extractor{
		storage:  st,
		detector: detector,
		run:      execRunner,
	}
}

// Extract fetches the file at uri and extracts its text according to the
// MIME type. Failures are surfaced as a single wrapped error; callers branch
// only on success or failure.
func (e *Extractor) Extract(ctx context.Context, uri, mimeType string) (string, error) {
	switch mimeType {
	case domain.MIMETypeJPEG, domain.MIMETypePNG:
		return e.extractImage(ctx, uri)
	case domain.MIMETypePDF:
		return e.extractPDF(ctx, uri)
	default:
		return "", fmt.Errorf("extract %s: unsupported mime type %q", uri, mimeType)
	}
}

func (e *Extractor) extractImage(ctx context.Context, uri string) (string, error) {
	data, err := e.storage.Fetch(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("extract image %s: %w", uri, err)
	}

	text, err := e.detector.DetectText(ctx, data)
	if err != nil {
		return "", fmt.Errorf("extract image %s: %w", uri, err)
	}
	// Empty text is a valid result for images: the OCR service found nothing.
	return text, nil
}

func (e *Extractor) extractPDF(ctx context.Context, uri string) (string, error) {
	data, err := e.storage.Fetch(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("extract pdf %s: %w", uri, err)
	}

	// All temp files (the PDF itself and every rendered page) live in one
	// scratch directory removed on every exit path.
	workDir, err := os.MkdirTemp("", "statement-extract-")
	if err != nil {
		return "", fmt.Errorf("extract pdf %s: create temp dir: %w", uri, err)
	}
	defer os.RemoveAll(workDir)

	pdfPath := filepath.Join(workDir, "statement.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return "", fmt.Errorf("extract pdf %s: write temp file: %w", uri, err)
	}

	pages := e.pageCount(ctx, pdfPath, data)
	if pages < 1 {
		return "", fmt.Errorf("extract pdf %s: zero pages", uri)
	}
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var sb strings.Builder
	detected := false
	for page := 1; page <= pages; page++ {
		imagePath, err := e.renderPage(ctx, workDir, pdfPath, page)
		if err != nil {
			return "", fmt.Errorf("extract pdf %s: %w", uri, err)
		}

		imageBytes, err := os.ReadFile(imagePath)
		// Each raster is removed as soon as it has been read, so a failure
		// on a later page leaves nothing behind beyond the workDir cleanup.
		os.Remove(imagePath)
		if err != nil {
			return "", fmt.Errorf("extract pdf %s: read rendered page %d: %w", uri, page, err)
		}

		text, err := e.detector.DetectText(ctx, imageBytes)
		if err != nil {
			return "", fmt.Errorf("extract pdf %s: ocr page %d: %w", uri, page, err)
		}
		if strings.TrimSpace(text) != "" {
			detected = true
		}

		fmt.Fprintf(&sb, "--- Page %d ---\n", page)
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	if !detected {
		return "", fmt.Errorf("extract pdf %s: no text detected in %d page(s)", uri, pages)
	}
	return sb.String(), nil
}
