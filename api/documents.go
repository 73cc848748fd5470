package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/loader"
	"github.com/koopa0/docchat/internal/log"
	"github.com/koopa0/docchat/internal/webpage"
)

// MaxUploadBytes caps one multipart upload.
const MaxUploadBytes = 32 << 20

// DocumentHandler serves ingestion and the document registry.
type DocumentHandler struct {
	engine Engine
	logger log.Logger
}

func NewDocumentHandler(engine Engine, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.upload)
	mux.HandleFunc("POST /api/v1/documents/url", h.ingestURL)
	mux.HandleFunc("GET /api/v1/documents", h.list)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.delete)
}

// upload ingests the files of a multipart form. Each file is one item;
// one bad file does not fail the rest.
func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "no files in the file field")
		return
	}

	results := make([]IngestItem, 0, len(files))
	for _, header := range files {
		results = append(results, h.ingestUpload(r, header))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// IngestItem is one per-file ingestion outcome.
type IngestItem struct {
	Filename   string   `json:"filename,omitempty"`
	URL        string   `json:"url,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	Title      string   `json:"title,omitempty"`
	ChunkCount int      `json:"chunk_count,omitempty"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

func (h *DocumentHandler) ingestUpload(r *http.Request, header *multipart.FileHeader) IngestItem {
	item := IngestItem{Filename: header.Filename, Status: "error"}

	f, err := header.Open()
	if err != nil {
		item.Error = "failed to read upload"
		return item
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		item.Error = "failed to read upload"
		return item
	}

	result, err := h.engine.IngestFile(r.Context(), header.Filename, data)
	if err != nil {
		h.logger.Warn("file ingestion failed", "filename", header.Filename, "error", err)
		item.Error = ingestErrorMessage(err)
		return item
	}

	item.Status = result.Status
	item.DocumentID = result.DocumentID
	item.Title = result.Title
	item.ChunkCount = result.ChunkCount
	item.Warnings = result.Warnings
	return item
}

// IngestURLRequest asks for one page, or a shallow same-host crawl when the
// server is configured for it. Dynamic renders JavaScript before extraction.
type IngestURLRequest struct {
	URL     string `json:"url"`
	Dynamic bool   `json:"dynamic,omitempty"`
}

func (h *DocumentHandler) ingestURL(w http.ResponseWriter, r *http.Request) {
	var req IngestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url must be absolute http or https")
		return
	}

	results, err := h.engine.IngestURL(r.Context(), req.URL, req.Dynamic)
	if err != nil {
		h.logger.Warn("url ingestion failed", "url", req.URL, "error", err)
		switch {
		case errors.Is(err, webpage.ErrBlockedURL):
			writeError(w, http.StatusBadRequest, "invalid_request", ingestErrorMessage(err))
		case errors.Is(err, webpage.ErrFetchTimeout):
			writeError(w, http.StatusGatewayTimeout, "fetch_failed", ingestErrorMessage(err))
		default:
			writeError(w, http.StatusBadGateway, "fetch_failed", ingestErrorMessage(err))
		}
		return
	}

	items := make([]IngestItem, 0, len(results))
	for _, result := range results {
		items = append(items, IngestItem{
			URL:        result.Source,
			DocumentID: result.DocumentID,
			Title:      result.Title,
			ChunkCount: result.ChunkCount,
			Status:     result.Status,
			Error:      result.Error,
			Warnings:   result.Warnings,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.Documents(r.Context())
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list documents")
		return
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "document id is required")
		return
	}

	if err := h.engine.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document does not exist")
			return
		}
		h.logger.Error("failed to delete document", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ingestErrorMessage keeps client-facing errors stable for the known
// taxonomy and generic otherwise.
func ingestErrorMessage(err error) string {
	switch {
	case errors.Is(err, loader.ErrUnsupportedFormat):
		return "unsupported file format"
	case errors.Is(err, loader.ErrCorruptFile):
		return "file could not be parsed"
	case errors.Is(err, webpage.ErrFetchTimeout):
		return "fetching the page timed out"
	case errors.Is(err, webpage.ErrUnreachableHost):
		return "the host could not be reached"
	case errors.Is(err, webpage.ErrNoContent):
		return "no readable content on the page"
	case errors.Is(err, webpage.ErrBlockedURL):
		return "url targets a blocked address"
	default:
		return "ingestion failed"
	}
}
