package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/koopa0/docchat/internal/loader/ocr"
)

// extractPDF pulls per-page text. Pages with no extractable text (scanned
// pages, image-only pages) fall back to OCR. OCR failure is recoverable: the
// page contributes empty text plus a warning and extraction continues.
func (l *Loader) extractPDF(ctx context.Context, name string, data []byte) (Extraction, error) {
	reader, err := newPDFReader(name, data)
	if err != nil {
		return Extraction{}, err
	}

	ext := Extraction{Format: FormatPDF, Title: baseTitle(name)}
	total := reader.NumPage()
	if total == 0 {
		return Extraction{}, fmt.Errorf("%w: %s has no pages", ErrCorruptFile, name)
	}

	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return Extraction{}, err
		}

		text := pageText(reader, num)
		if strings.TrimSpace(text) == "" {
			text = l.ocrPage(ctx, name, data, num, &ext.Warnings)
		}

		normalized, normErr := normalizeText(name, []byte(text))
		if normErr != nil {
			normalized = ""
		}
		ext.Pages = append(ext.Pages, Page{Number: num, Text: normalized})
	}

	if strings.TrimSpace(ext.Text()) == "" && len(ext.Warnings) == 0 {
		return Extraction{}, fmt.Errorf("%w: %s yielded no text", ErrCorruptFile, name)
	}
	return ext, nil
}

func newPDFReader(name string, data []byte) (reader *pdf.Reader, err error) {
	// The pdf package panics on some malformed cross-reference tables
	// instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("%w: %s: %v", ErrCorruptFile, name, r)
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptFile, name, err)
	}
	return reader, nil
}

func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// ocrPage recognizes one blank page. Failures append a warning and return "".
func (l *Loader) ocrPage(ctx context.Context, name string, data []byte, num int, warnings *[]string) string {
	if l.ocr == nil {
		*warnings = append(*warnings, fmt.Sprintf("page %d: no extractable text and no OCR engine configured", num))
		return ""
	}

	text, err := l.ocr.PDFPage(ctx, data, num)
	if err != nil {
		if errors.Is(err, ocr.ErrUnavailable) {
			l.logger.Warn("ocr unavailable for blank page", "file", name, "page", num, "error", err)
		} else {
			l.logger.Warn("ocr failed for blank page", "file", name, "page", num, "error", err)
		}
		*warnings = append(*warnings, fmt.Sprintf("page %d: ocr failed: %v", num, err))
		return ""
	}
	return text
}
