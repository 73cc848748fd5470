package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koopa0/docchat/internal/chunker"
	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/loader"
	"github.com/koopa0/docchat/internal/webpage"
)

const (
	// embedBatchSize chunks per embedding request during ingestion.
	embedBatchSize = 32

	// embedConcurrency caps parallel embedding requests per document.
	embedConcurrency = 4
)

// IngestResult reports the outcome for one document. Error is set for
// per-item failures; sibling ingestions are unaffected.
type IngestResult struct {
	DocumentID string   `json:"document_id"`
	Source     string   `json:"source"`
	Title      string   `json:"title"`
	ChunkCount int      `json:"chunk_count"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// IngestFile extracts, chunks, embeds and stores one uploaded file.
// Re-ingesting the same file name converges to the same document id and
// chunk set.
func (e *Engine) IngestFile(ctx context.Context, filename string, data []byte) (IngestResult, error) {
	if e.extractor == nil {
		return IngestResult{}, fmt.Errorf("file ingestion is not configured")
	}

	extraction, err := e.extractor.Extract(ctx, filename, data)
	if err != nil {
		return IngestResult{}, err
	}

	id := documentID("file", filename)
	doc := knowledge.Document{
		ID:         id,
		SourceType: knowledge.SourceTypeFile,
		Title:      extraction.Title,
		Source:     filename,
		IngestedAt: time.Now(),
	}
	if extraction.Format == loader.FormatPDF {
		doc.PageCount = len(extraction.Pages)
	}

	result, err := e.ingestDocument(ctx, doc, extraction.Pages)
	result.Warnings = extraction.Warnings
	return result, err
}

// IngestURL fetches a page (or, depth permitting, a same-host crawl from it)
// and ingests every page as its own document. Per-page failures are reported
// in the matching result and do not abort sibling pages.
func (e *Engine) IngestURL(ctx context.Context, pageURL string, dynamic bool) ([]IngestResult, error) {
	pages, err := e.fetchPages(ctx, pageURL, dynamic)
	if err != nil {
		return nil, err
	}

	results := make([]IngestResult, 0, len(pages))
	for _, page := range pages {
		doc := knowledge.Document{
			ID:         documentID("web", page.URL),
			SourceType: knowledge.SourceTypeWeb,
			Title:      page.Title,
			Source:     page.URL,
			IngestedAt: time.Now(),
		}
		result, ingErr := e.ingestDocument(ctx, doc, []loader.Page{{Text: page.Text}})
		if ingErr != nil {
			e.logger.Warn("page ingestion failed", "url", page.URL, "error", ingErr)
			results = append(results, IngestResult{
				DocumentID: doc.ID,
				Source:     page.URL,
				Title:      page.Title,
				Status:     "error",
				Error:      ingErr.Error(),
			})
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) fetchPages(ctx context.Context, pageURL string, dynamic bool) ([]webpage.Page, error) {
	if e.pages == nil {
		return nil, fmt.Errorf("url ingestion is not configured")
	}

	// Rendering only applies to a single page; crawling is static.
	if dynamic || e.crawler == nil {
		var (
			page webpage.Page
			err  error
		)
		if dynamic {
			page, err = e.pages.FetchDynamic(ctx, pageURL)
		} else {
			page, err = e.pages.Fetch(ctx, pageURL)
		}
		if err != nil {
			return nil, err
		}
		return []webpage.Page{page}, nil
	}

	return e.crawler.Crawl(ctx, pageURL)
}

// ingestDocument chunks the extracted pages, embeds the chunks in parallel
// batches, and atomically replaces the document in the store. Chunk indices
// are assigned before embedding, so they stay deterministic regardless of
// embedding execution order.
func (e *Engine) ingestDocument(ctx context.Context, doc knowledge.Document, pages []loader.Page) (IngestResult, error) {
	split, err := chunker.New(e.cfg.ChunkSize, e.cfg.ChunkOverlap)
	if err != nil {
		return IngestResult{}, err
	}

	var chunks []knowledge.Chunk
	for _, page := range pages {
		for _, text := range split.Split(page.Text) {
			chunks = append(chunks, knowledge.Chunk{
				DocumentID: doc.ID,
				Index:      len(chunks),
				Text:       text,
				Page:       page.Number,
			})
		}
	}
	if len(chunks) == 0 {
		return IngestResult{}, fmt.Errorf("%w: %s yielded no chunks", loader.ErrCorruptFile, doc.Source)
	}

	vectors, err := e.embedChunks(ctx, chunks)
	if err != nil {
		return IngestResult{}, err
	}

	entries := make([]knowledge.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = knowledge.Entry{Chunk: chunk, Vector: vectors[i]}
	}

	doc.ChunkCount = len(entries)
	if err := e.store.UpsertDocument(ctx, doc, entries); err != nil {
		return IngestResult{}, fmt.Errorf("storing %q: %w", doc.ID, err)
	}

	e.logger.Info("document ingested",
		"id", doc.ID,
		"title", doc.Title,
		"chunks", len(entries),
		"pages", doc.PageCount,
	)
	return IngestResult{
		DocumentID: doc.ID,
		Source:     doc.Source,
		Title:      doc.Title,
		ChunkCount: len(entries),
		Status:     "ok",
	}, nil
}

// embedChunks embeds chunk texts in bounded parallel batches. Vectors land
// at their chunk's index, keeping output order independent of scheduling.
func (e *Engine) embedChunks(ctx context.Context, chunks []knowledge.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		start := start
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			batch, err := e.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// DeleteDocument removes a document and all of its chunks.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	return e.store.DeleteDocument(ctx, documentID)
}

// Documents lists the registry of ingested documents, newest first.
func (e *Engine) Documents(ctx context.Context) ([]knowledge.Document, error) {
	return e.store.ListDocuments(ctx)
}

// documentID derives a stable id from the source identity so re-ingestion
// replaces rather than duplicates.
func documentID(kind, source string) string {
	sum := sha256.Sum256([]byte(source))
	return kind + "_" + hex.EncodeToString(sum[:16])
}
