package loader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"
)

// extractImage recognizes text in a standalone image via OCR. Unlike the
// blank-PDF-page fallback, OCR failure here is fatal for the item: there is
// no other text to extract.
func (l *Loader) extractImage(ctx context.Context, name string, data []byte) (Extraction, error) {
	if l.ocr == nil {
		return Extraction{}, fmt.Errorf("%w: %s requires OCR and no engine is configured", ErrUnsupportedFormat, name)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %s: %v", ErrCorruptFile, name, err)
	}

	text, err := l.ocr.Image(ctx, data)
	if err != nil {
		return Extraction{}, fmt.Errorf("recognizing %s: %w", name, err)
	}

	var b strings.Builder
	if t := strings.TrimSpace(text); t != "" {
		b.WriteString(t)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Image: %s, %dx%d pixels", format, cfg.Width, cfg.Height)

	return Extraction{
		Format: FormatImage,
		Title:  baseTitle(name),
		Pages:  []Page{{Text: b.String()}},
	}, nil
}
