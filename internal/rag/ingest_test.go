package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/loader"
	"github.com/koopa0/docchat/internal/webpage"
)

func longText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		fmt.Fprintf(&b, "t%03d ", i)
	}
	return strings.TrimSpace(b.String())
}

func TestIngestFileStoresChunks(t *testing.T) {
	store := &stubStore{}
	engine := newTestEngine(t, Options{
		Store: store,
		Extractor: &stubExtractor{extraction: loader.Extraction{
			Format: loader.FormatPDF,
			Title:  "report.pdf",
			Pages: []loader.Page{
				{Number: 1, Text: longText(60)},
				{Number: 2, Text: longText(60)},
			},
		}},
		Config: Config{ChunkSize: 50, ChunkOverlap: 10},
	})

	result, err := engine.IngestFile(context.Background(), "report.pdf", []byte("%PDF-"))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if result.Status != "ok" {
		t.Errorf("Status = %q", result.Status)
	}
	if !strings.HasPrefix(result.DocumentID, "file_") {
		t.Errorf("DocumentID = %q, want file_ prefix", result.DocumentID)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("upserted %d documents, want 1", len(store.upserted))
	}

	doc := store.upserted[0]
	entries := store.entries[0]
	if doc.ChunkCount != len(entries) || result.ChunkCount != len(entries) {
		t.Errorf("chunk counts disagree: doc %d, result %d, entries %d",
			doc.ChunkCount, result.ChunkCount, len(entries))
	}
	if doc.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", doc.PageCount)
	}

	sawSecondPage := false
	for i, entry := range entries {
		if entry.Chunk.Index != i {
			t.Fatalf("entries[%d].Index = %d, indices must be gap-free across pages", i, entry.Chunk.Index)
		}
		if entry.Chunk.Page == 2 {
			sawSecondPage = true
		}
	}
	if !sawSecondPage {
		t.Error("no chunk carries the second page number")
	}
}

func TestIngestFileDeterministicDocumentID(t *testing.T) {
	extractor := &stubExtractor{extraction: loader.Extraction{
		Format: loader.FormatText,
		Title:  "notes.txt",
		Pages:  []loader.Page{{Text: "stable content"}},
	}}
	store := &stubStore{}
	engine := newTestEngine(t, Options{Store: store, Extractor: extractor})

	ctx := context.Background()
	first, err := engine.IngestFile(ctx, "notes.txt", []byte("a"))
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := engine.IngestFile(ctx, "notes.txt", []byte("b"))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first.DocumentID != second.DocumentID {
		t.Errorf("re-ingesting the same name produced %q then %q", first.DocumentID, second.DocumentID)
	}

	other, err := engine.IngestFile(ctx, "other.txt", []byte("a"))
	if err != nil {
		t.Fatalf("other ingest: %v", err)
	}
	if other.DocumentID == first.DocumentID {
		t.Error("distinct names must map to distinct document ids")
	}
}

func TestIngestFileEmbeddingPlacement(t *testing.T) {
	embedder := &stubEmbedder{batch: func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(text[0]), float32(len(text))}
		}
		return out, nil
	}}
	store := &stubStore{}
	engine := newTestEngine(t, Options{
		Store:    store,
		Embedder: embedder,
		Extractor: &stubExtractor{extraction: loader.Extraction{
			Format: loader.FormatText,
			Pages:  []loader.Page{{Text: longText(400)}},
		}},
		Config: Config{ChunkSize: 20, ChunkOverlap: 5},
	})

	if _, err := engine.IngestFile(context.Background(), "big.txt", nil); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	entries := store.entries[0]
	if len(entries) <= embedBatchSize {
		t.Fatalf("got %d chunks, want more than one embedding batch", len(entries))
	}
	for i, entry := range entries {
		want := []float32{float32(entry.Chunk.Text[0]), float32(len(entry.Chunk.Text))}
		if entry.Vector[0] != want[0] || entry.Vector[1] != want[1] {
			t.Fatalf("entries[%d] vector does not belong to its chunk text", i)
		}
	}
}

func TestIngestFileExtractionFailure(t *testing.T) {
	engine := newTestEngine(t, Options{
		Extractor: &stubExtractor{err: loader.ErrUnsupportedFormat},
	})

	_, err := engine.IngestFile(context.Background(), "video.mp4", nil)
	if !errors.Is(err, loader.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestIngestFileNoChunks(t *testing.T) {
	engine := newTestEngine(t, Options{
		Extractor: &stubExtractor{extraction: loader.Extraction{
			Format: loader.FormatPDF,
			Pages:  []loader.Page{{Number: 1, Text: ""}},
		}},
	})

	_, err := engine.IngestFile(context.Background(), "blank.pdf", nil)
	if !errors.Is(err, loader.ErrCorruptFile) {
		t.Fatalf("err = %v, want ErrCorruptFile", err)
	}
}

func TestIngestFileWithoutExtractor(t *testing.T) {
	engine := newTestEngine(t, Options{})

	if _, err := engine.IngestFile(context.Background(), "a.txt", nil); err == nil {
		t.Fatal("file ingestion without an extractor must fail")
	}
}

func TestIngestURLStatic(t *testing.T) {
	pages := &stubPages{page: webpage.Page{
		URL:   "https://example.com/post",
		Title: "Post",
		Text:  longText(40),
	}}
	store := &stubStore{}
	engine := newTestEngine(t, Options{Store: store, Pages: pages})

	results, err := engine.IngestURL(context.Background(), "https://example.com/post", false)
	if err != nil {
		t.Fatalf("IngestURL: %v", err)
	}
	if len(results) != 1 || results[0].Status != "ok" {
		t.Fatalf("results = %+v", results)
	}
	if !strings.HasPrefix(results[0].DocumentID, "web_") {
		t.Errorf("DocumentID = %q, want web_ prefix", results[0].DocumentID)
	}
	if pages.staticCalls != 1 || pages.dynamicCalls != 0 {
		t.Errorf("fetch calls static=%d dynamic=%d, want one static fetch", pages.staticCalls, pages.dynamicCalls)
	}
	if store.upserted[0].SourceType != knowledge.SourceTypeWeb {
		t.Errorf("SourceType = %q", store.upserted[0].SourceType)
	}
}

func TestIngestURLDynamicUsesRenderer(t *testing.T) {
	pages := &stubPages{page: webpage.Page{URL: "https://app.example.com", Title: "App", Text: longText(40)}}
	engine := newTestEngine(t, Options{Store: &stubStore{}, Pages: pages, Crawler: &stubCrawler{}})

	if _, err := engine.IngestURL(context.Background(), "https://app.example.com", true); err != nil {
		t.Fatalf("IngestURL: %v", err)
	}
	if pages.dynamicCalls != 1 || pages.staticCalls != 0 {
		t.Errorf("fetch calls static=%d dynamic=%d, want one dynamic fetch", pages.staticCalls, pages.dynamicCalls)
	}
}

func TestIngestURLCrawlContinuesPastPageFailure(t *testing.T) {
	crawler := &stubCrawler{pages: []webpage.Page{
		{URL: "https://example.com", Title: "Root", Text: longText(40)},
		{URL: "https://example.com/empty", Title: "Empty", Text: ""},
		{URL: "https://example.com/about", Title: "About", Text: longText(40)},
	}}
	store := &stubStore{}
	engine := newTestEngine(t, Options{Store: store, Pages: &stubPages{}, Crawler: crawler})

	results, err := engine.IngestURL(context.Background(), "https://example.com", false)
	if err != nil {
		t.Fatalf("IngestURL: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want one per crawled page", len(results))
	}
	if results[0].Status != "ok" || results[2].Status != "ok" {
		t.Errorf("sibling pages must ingest despite a failure: %+v", results)
	}
	if results[1].Status != "error" || results[1].Error == "" {
		t.Errorf("empty page should fail per-item: %+v", results[1])
	}
	if len(store.upserted) != 2 {
		t.Errorf("upserted %d documents, want 2", len(store.upserted))
	}
}

func TestIngestURLFetchFailure(t *testing.T) {
	engine := newTestEngine(t, Options{Pages: &stubPages{err: webpage.ErrUnreachableHost}})

	_, err := engine.IngestURL(context.Background(), "https://down.example.com", false)
	if !errors.Is(err, webpage.ErrUnreachableHost) {
		t.Fatalf("err = %v, want ErrUnreachableHost", err)
	}
}

func TestIngestURLWithoutFetcher(t *testing.T) {
	engine := newTestEngine(t, Options{})

	if _, err := engine.IngestURL(context.Background(), "https://example.com", false); err == nil {
		t.Fatal("url ingestion without a fetcher must fail")
	}
}

func TestDeleteDocument(t *testing.T) {
	store := &stubStore{}
	engine := newTestEngine(t, Options{Store: store})

	if err := engine.DeleteDocument(context.Background(), "file_abc"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "file_abc" {
		t.Errorf("deleted = %v", store.deleted)
	}
}

func TestDocuments(t *testing.T) {
	store := &stubStore{listResults: []knowledge.Document{{ID: "a"}, {ID: "b"}}}
	engine := newTestEngine(t, Options{Store: store})

	docs, err := engine.Documents(context.Background())
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("got %d documents, want 2", len(docs))
	}
}
