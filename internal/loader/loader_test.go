package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/koopa0/docchat/internal/log"
)

// stubOCR implements ocr.Engine for tests.
type stubOCR struct {
	text string
	err  error
}

func (s *stubOCR) Image(context.Context, []byte) (string, error) {
	return s.text, s.err
}

func (s *stubOCR) PDFPage(context.Context, []byte, int) (string, error) {
	return s.text, s.err
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileName string
		data     []byte
		want     Format
		wantErr  error
	}{
		{"pdf magic", "report.pdf", []byte("%PDF-1.7 rest"), FormatPDF, nil},
		{"pdf magic wrong extension", "report.bin", []byte("%PDF-1.7 rest"), FormatPDF, nil},
		{"docx zip", "notes.docx", []byte("PK\x03\x04 rest"), FormatDOCX, nil},
		{"plain zip", "archive.zip", []byte("PK\x03\x04 rest"), "", ErrUnsupportedFormat},
		{"png magic", "scan.png", []byte("\x89PNG\r\n\x1a\n rest"), FormatImage, nil},
		{"jpeg magic", "photo.jpg", []byte("\xff\xd8\xff\xe0 rest"), FormatImage, nil},
		{"txt extension", "readme.txt", []byte("hello"), FormatText, nil},
		{"md extension", "doc.md", []byte("# hi"), FormatMarkdown, nil},
		{"html extension", "page.html", []byte("<html>"), FormatHTML, nil},
		{"unknown extension", "data.xyz", []byte("hello"), "", ErrUnsupportedFormat},
		{"pdf extension without magic", "fake.pdf", []byte("not a pdf"), "", ErrCorruptFile},
		{"png extension without magic", "fake.png", []byte("not a png"), "", ErrCorruptFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := detectFormat(tt.fileName, tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("detectFormat error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("detectFormat: %v", err)
			}
			if got != tt.want {
				t.Errorf("detectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractEmptyFile(t *testing.T) {
	t.Parallel()

	l := New(nil, log.NewNop())
	_, err := l.Extract(context.Background(), "empty.txt", nil)
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("Extract(empty) error = %v, want ErrCorruptFile", err)
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	l := New(nil, log.NewNop())
	ext, err := l.Extract(context.Background(), "notes.txt", []byte("first line  \r\nsecond line\r\rthird"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Format != FormatText {
		t.Errorf("Format = %q, want text", ext.Format)
	}
	if ext.Title != "notes" {
		t.Errorf("Title = %q, want notes", ext.Title)
	}
	want := "first line\nsecond line\n\nthird"
	if got := ext.Text(); got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestExtractTextRejectsBinary(t *testing.T) {
	t.Parallel()

	l := New(nil, log.NewNop())
	_, err := l.Extract(context.Background(), "notes.txt", []byte{0xff, 0xfe, 0x00, 0x01})
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("Extract(binary .txt) error = %v, want ErrCorruptFile", err)
	}
}

func TestExtractMarkdownTitle(t *testing.T) {
	t.Parallel()

	l := New(nil, log.NewNop())
	src := "intro paragraph\n\n# Deployment Guide\n\nbody text"
	ext, err := l.Extract(context.Background(), "guide.md", []byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Title != "Deployment Guide" {
		t.Errorf("Title = %q, want heading text", ext.Title)
	}
	if ext.Text() != src {
		t.Errorf("markdown source must survive intact, got %q", ext.Text())
	}
}

func TestExtractHTML(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Release Notes</title>
<script>alert("x")</script><style>p{}</style></head>
<body><nav>menu</nav>
<article><h1>Changes</h1><p>Fixed the importer.</p><p>Added exports.</p></article>
<footer>contact</footer></body></html>`

	l := New(nil, log.NewNop())
	ext, err := l.Extract(context.Background(), "notes.html", []byte(html))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Title != "Release Notes" {
		t.Errorf("Title = %q, want Release Notes", ext.Title)
	}
	text := ext.Text()
	for _, want := range []string{"Changes", "Fixed the importer.", "Added exports."} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %q", want, text)
		}
	}
	for _, banned := range []string{"alert", "menu", "contact"} {
		if strings.Contains(text, banned) {
			t.Errorf("boilerplate %q leaked into text: %q", banned, text)
		}
	}
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	t.Parallel()

	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph </w:t></w:r><w:r><w:t>continues here.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Column a</w:t></w:r><w:tab/><w:r><w:t>column b</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`

	l := New(nil, log.NewNop())
	ext, err := l.Extract(context.Background(), "report.docx", buildDOCX(t, docXML))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "First paragraph continues here.\n\nColumn a\tcolumn b"
	if got := ext.Text(); got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestExtractDOCXMissingDocument(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, _ := w.Create("word/styles.xml")
	_, _ = f.Write([]byte("<xml/>"))
	_ = w.Close()

	l := New(nil, log.NewNop())
	_, err := l.Extract(context.Background(), "broken.docx", buf.Bytes())
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("Extract error = %v, want ErrCorruptFile", err)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractImage(t *testing.T) {
	t.Parallel()

	l := New(&stubOCR{text: "INVOICE 42"}, log.NewNop())
	ext, err := l.Extract(context.Background(), "scan.png", pngBytes(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Format != FormatImage {
		t.Errorf("Format = %q, want image", ext.Format)
	}
	text := ext.Text()
	if !strings.Contains(text, "INVOICE 42") {
		t.Errorf("text missing OCR output: %q", text)
	}
	if !strings.Contains(text, "2x2") {
		t.Errorf("text missing dimensions: %q", text)
	}
}

func TestExtractImageWithoutEngine(t *testing.T) {
	t.Parallel()

	l := New(nil, log.NewNop())
	_, err := l.Extract(context.Background(), "scan.png", pngBytes(t))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Extract error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractImageOCRFailure(t *testing.T) {
	t.Parallel()

	ocrErr := errors.New("engine crashed")
	l := New(&stubOCR{err: ocrErr}, log.NewNop())
	_, err := l.Extract(context.Background(), "scan.png", pngBytes(t))
	if !errors.Is(err, ocrErr) {
		t.Errorf("Extract error = %v, want wrapped engine error", err)
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	t.Parallel()

	l := New(nil, log.NewNop())
	_, err := l.Extract(context.Background(), "broken.pdf", []byte("%PDF-1.4\ngarbage body"))
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("Extract error = %v, want ErrCorruptFile", err)
	}
}
