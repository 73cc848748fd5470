// Package chunker splits normalized text into overlapping windows for
// embedding and retrieval.
//
// The splitter prefers paragraph, then line, then word boundaries before
// cutting mid-word, and guarantees:
//
//   - determinism: fixed input and parameters always produce the same chunks
//   - full coverage: every character of the input belongs to at least one chunk
//   - stable order: chunk i starts no later than chunk i+1
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize is the default chunk size in characters.
	DefaultSize = 500

	// DefaultOverlap is the default overlap between consecutive chunks.
	DefaultOverlap = 50
)

// ErrInvalidParams indicates inconsistent size/overlap parameters.
var ErrInvalidParams = errors.New("invalid chunker parameters")

// separators are tried in order when looking for a cut point, mirroring the
// preference for paragraph > line > word boundaries.
var separators = []string{"\n\n", "\n", " "}

// Chunker splits text deterministically into overlapping windows.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. size must be positive and overlap must be smaller
// than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidParams, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, size)", ErrInvalidParams, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split cuts text into chunks of at most the configured size, overlapping by
// the configured amount. Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		// Prefer a natural boundary in the second half of the window so
		// chunks stay reasonably sized.
		cut := c.findCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - c.overlap
		if next <= start {
			// Overlap must never stall progress.
			next = start + 1
		}
		start = next
	}

	return chunks
}

// findCut returns the exclusive end index for a chunk starting at start,
// preferring the last separator occurrence within the window's second half.
// The returned index always lies in (start, end].
func (c *Chunker) findCut(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := c.size / 2

	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// Rune offset of the separator within the window. The window was
		// built from whole runes so the byte index maps cleanly back.
		runeIdx := len([]rune(window[:idx]))
		if runeIdx >= minCut {
			// Cut after the separator so no character is lost.
			return start + runeIdx + len([]rune(sep))
		}
	}

	return end
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }
