package knowledge

import (
	"fmt"
	"time"
)

// SourceType categorizes where an ingested document came from.
const (
	// SourceTypeFile is an uploaded file (pdf, docx, txt, md, image).
	SourceTypeFile = "file"

	// SourceTypeWeb is a fetched web page.
	SourceTypeWeb = "web"
)

// Origin tags where a retrieval result was drawn from at query time.
type Origin string

const (
	// OriginLocal marks results retrieved from the vector store.
	OriginLocal Origin = "local"

	// OriginWeb marks pseudo-chunks produced by the web-search fallback.
	OriginWeb Origin = "web"
)

// Document is an ingested unit (file or URL). It persists until explicit
// deletion.
type Document struct {
	ID         string
	SourceType string
	Title      string
	Source     string // original path or URL
	PageCount  int    // 0 for unpaginated sources
	ChunkCount int
	IngestedAt time.Time
}

// Chunk is one contiguous text span of a Document. Chunks are immutable;
// re-ingesting a document replaces all chunks sharing its document ID.
type Chunk struct {
	DocumentID string
	Index      int    // sequence order within the document, gap-free
	Text       string
	Page       int               // originating page for paginated sources, else 0
	Metadata   map[string]string // inherited document metadata
}

// ID returns the chunk's stable identifier, derived from its document and
// position so that re-ingestion converges on the same IDs.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%d", c.DocumentID, c.Index)
}

// Entry pairs a chunk with its embedding vector for persistence.
type Entry struct {
	Chunk  Chunk
	Vector []float32
}

// Result is a transient similarity-search hit. Score is a normalized cosine
// similarity in [0,1].
type Result struct {
	ChunkID    string
	DocumentID string
	Index      int
	Text       string
	Title      string
	Source     string
	Page       int
	Score      float32
	Origin     Origin
}
