// Package loader extracts normalized text from ingested files.
//
// A single Loader dispatches on detected format (content sniffing first,
// filename extension as tiebreaker) to the per-format extractors. Paginated
// formats report per-page text; everything else yields one page.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/koopa0/docchat/internal/loader/ocr"
)

var (
	// ErrUnsupportedFormat indicates a file type the loader cannot handle.
	// Fatal for the item, never for the batch.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptFile indicates the file claims a supported format but cannot
	// be parsed. Fatal for the item, never for the batch.
	ErrCorruptFile = errors.New("corrupt file")
)

// Format identifies a supported input format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatImage    Format = "image"
)

// Page is one unit of extracted text. Non-paginated formats produce a single
// page with Number 0.
type Page struct {
	Number int
	Text   string
}

// Extraction is the normalized result of loading one file.
type Extraction struct {
	Format   Format
	Title    string
	Pages    []Page
	Warnings []string
}

// Text joins all page texts in order.
func (e Extraction) Text() string {
	parts := make([]string, 0, len(e.Pages))
	for _, p := range e.Pages {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Loader extracts text from supported file formats.
type Loader struct {
	ocr    ocr.Engine
	logger *slog.Logger
}

// New creates a Loader. The OCR engine may be nil, in which case image files
// are rejected and blank PDF pages stay blank.
func New(engine ocr.Engine, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{ocr: engine, logger: logger}
}

// Extract detects the format of data and runs the matching extractor.
func (l *Loader) Extract(ctx context.Context, name string, data []byte) (Extraction, error) {
	if len(data) == 0 {
		return Extraction{}, fmt.Errorf("%w: %s is empty", ErrCorruptFile, name)
	}

	format, err := detectFormat(name, data)
	if err != nil {
		return Extraction{}, err
	}

	switch format {
	case FormatPDF:
		return l.extractPDF(ctx, name, data)
	case FormatText:
		return extractText(name, data)
	case FormatMarkdown:
		return extractMarkdown(name, data)
	case FormatHTML:
		return extractHTML(name, data)
	case FormatDOCX:
		return extractDOCX(name, data)
	case FormatImage:
		return l.extractImage(ctx, name, data)
	default:
		return Extraction{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// magic numbers checked before trusting the extension.
var (
	magicPDF  = []byte("%PDF-")
	magicZip  = []byte("PK\x03\x04")
	magicPNG  = []byte("\x89PNG\r\n\x1a\n")
	magicJPEG = []byte("\xff\xd8\xff")
)

// detectFormat sniffs content first and falls back to the extension for
// plain-text variants that share the same byte shape.
func detectFormat(name string, data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, magicPDF):
		return FormatPDF, nil
	case bytes.HasPrefix(data, magicZip):
		// DOCX is a zip container; anything else zip-shaped is unsupported.
		if strings.EqualFold(filepath.Ext(name), ".docx") {
			return FormatDOCX, nil
		}
		return "", fmt.Errorf("%w: %s (zip archive)", ErrUnsupportedFormat, name)
	case bytes.HasPrefix(data, magicPNG), bytes.HasPrefix(data, magicJPEG):
		return FormatImage, nil
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return FormatText, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".pdf", ".docx", ".png", ".jpg", ".jpeg":
		// Extension claims a binary format but the magic bytes disagree.
		return "", fmt.Errorf("%w: %s does not match its extension", ErrCorruptFile, name)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// normalizeText canonicalizes line endings and trims trailing space per line.
// Invalid UTF-8 means the file is not actually text.
func normalizeText(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrCorruptFile, name)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// baseTitle derives a fallback title from the file name.
func baseTitle(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
