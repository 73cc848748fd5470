// Package ocr extracts text from raster images and rasterized PDF pages.
//
// The default Engine shells out to the tesseract binary so the process has
// no cgo dependency. Callers stub the Engine interface in tests.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnavailable indicates the OCR toolchain is not installed or not usable.
var ErrUnavailable = errors.New("ocr unavailable")

// Engine recognizes text in binary image data.
type Engine interface {
	// Image extracts text from a standalone raster image (PNG, JPEG, TIFF).
	Image(ctx context.Context, data []byte) (string, error)

	// PDFPage rasterizes one page (1-based) of a PDF document and extracts
	// its text.
	PDFPage(ctx context.Context, data []byte, page int) (string, error)
}

// Tesseract is an Engine backed by the tesseract and pdftoppm binaries.
type Tesseract struct {
	// Binary overrides the tesseract executable name. Empty means "tesseract".
	Binary string

	// Rasterizer overrides the PDF rasterizer executable. Empty means "pdftoppm".
	Rasterizer string
}

func (t *Tesseract) binary() string {
	if t.Binary != "" {
		return t.Binary
	}
	return "tesseract"
}

func (t *Tesseract) rasterizer() string {
	if t.Rasterizer != "" {
		return t.Rasterizer
	}
	return "pdftoppm"
}

// Image runs tesseract over the raw image bytes.
func (t *Tesseract) Image(ctx context.Context, data []byte) (string, error) {
	out, err := t.run(ctx, data, t.binary(), "stdin", "stdout")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// PDFPage pipes the document through pdftoppm to rasterize the requested
// page, then recognizes the resulting PNG.
func (t *Tesseract) PDFPage(ctx context.Context, data []byte, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page %d out of range", page)
	}

	n := strconv.Itoa(page)
	png, err := t.run(ctx, data, t.rasterizer(), "-png", "-r", "200", "-f", n, "-l", n, "-", "-")
	if err != nil {
		return "", err
	}
	return t.Image(ctx, []byte(png))
}

func (t *Tesseract) run(ctx context.Context, stdin []byte, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not installed", ErrUnavailable, name)
		}
		return "", fmt.Errorf("%w: %s: %v: %s", ErrUnavailable, name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
