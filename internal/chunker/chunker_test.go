package chunker

import (
	"errors"
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"defaults", DefaultSize, DefaultOverlap, false},
		{"no overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -1, 0, true},
		{"negative overlap", 100, -5, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.size, tc.overlap)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Fatalf("New(%d, %d) error = %v, want ErrInvalidParams", tc.size, tc.overlap, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%d, %d) unexpected error: %v", tc.size, tc.overlap, err)
			}
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	c, err := New(DefaultSize, DefaultOverlap)
	if err != nil {
		t.Fatal(err)
	}

	for _, input := range []string{"", "   ", "\n\n\t"} {
		if got := c.Split(input); got != nil {
			t.Errorf("Split(%q) = %v, want nil", input, got)
		}
	}
}

func TestSplitShortInput(t *testing.T) {
	c, err := New(DefaultSize, DefaultOverlap)
	if err != nil {
		t.Fatal(err)
	}

	text := "a short document that fits in one chunk"
	got := c.Split(text)
	if len(got) != 1 || got[0] != text {
		t.Fatalf("Split short input = %v, want single chunk equal to input", got)
	}
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(120, 20)
	if err != nil {
		t.Fatal(err)
	}

	text := buildText(40)
	first := c.Split(text)
	for range 5 {
		again := c.Split(text)
		if len(again) != len(first) {
			t.Fatalf("chunk count varies between runs: %d vs %d", len(again), len(first))
		}
		for i := range first {
			if again[i] != first[i] {
				t.Fatalf("chunk %d varies between runs", i)
			}
		}
	}
}

func TestSplitCoverage(t *testing.T) {
	c, err := New(100, 15)
	if err != nil {
		t.Fatal(err)
	}

	text := buildText(60)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Every chunk must appear in the source, and walking the chunks must
	// cover the source end to end with no gaps. Consecutive chunks overlap,
	// so each search starts just past the previous chunk's start.
	searchFrom := 0
	covered := 0
	for i, chunk := range chunks {
		idx := strings.Index(text[searchFrom:], chunk)
		if idx < 0 {
			t.Fatalf("chunk %d not found in source at or after offset %d", i, searchFrom)
		}
		chunkStart := searchFrom + idx
		if chunkStart > covered {
			// A gap means characters between the previous chunk's end and
			// this chunk's start were dropped.
			t.Fatalf("gap before chunk %d: starts at %d, covered up to %d", i, chunkStart, covered)
		}
		covered = chunkStart + len(chunk)
		searchFrom = chunkStart + 1
	}
	if covered != len(text) {
		t.Fatalf("chunks cover %d of %d bytes", covered, len(text))
	}
}

func TestSplitSizeBound(t *testing.T) {
	c, err := New(80, 10)
	if err != nil {
		t.Fatal(err)
	}

	for i, chunk := range c.Split(buildText(50)) {
		if n := len([]rune(chunk)); n > 80 {
			t.Errorf("chunk %d has %d runes, exceeds size 80", i, n)
		}
	}
}

func TestSplitOverlap(t *testing.T) {
	c, err := New(100, 25)
	if err != nil {
		t.Fatal(err)
	}

	chunks := c.Split(buildText(50))
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		n := min(25, len(cur))
		tail := string(prev[len(prev)-n:])
		head := string(cur[:n])
		if tail != head {
			t.Errorf("chunks %d/%d do not overlap by %d runes:\n tail=%q\n head=%q", i-1, i, n, tail, head)
		}
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	c, err := New(60, 10)
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("word ", 8) + "\n\n" + strings.Repeat("more ", 30)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got %q", chunks[0])
	}
}

func TestSplitMultibyte(t *testing.T) {
	c, err := New(50, 10)
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("知識庫檢索 ", 40)
	for i, chunk := range c.Split(text) {
		if !strings.Contains(text, chunk) {
			t.Fatalf("chunk %d is not a substring of the source, runes were split", i)
		}
	}
}

func TestSplitNoSeparators(t *testing.T) {
	c, err := New(40, 8)
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("x", 200)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected hard cuts on separator-free input, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 40 {
			t.Errorf("chunk %d too large on hard cut: %d", i, len(chunk))
		}
	}
}

func buildText(sentences int) string {
	var b strings.Builder
	for i := range sentences {
		b.WriteString("Sentence number ")
		b.WriteByte(byte('a' + i%26))
		b.WriteString(" carries a few words of content.")
		switch i % 4 {
		case 3:
			b.WriteString("\n\n")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}
