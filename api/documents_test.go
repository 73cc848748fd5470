package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/loader"
	"github.com/koopa0/docchat/internal/rag"
	"github.com/koopa0/docchat/internal/webpage"
)

func multipartUpload(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("writing part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

type ingestResults struct {
	Results []IngestItem `json:"results"`
}

func TestUploadDocuments(t *testing.T) {
	engine := &stubEngine{ingestFileFn: func(filename string, data []byte) (rag.IngestResult, error) {
		if filename == "bad.xyz" {
			return rag.IngestResult{}, loader.ErrUnsupportedFormat
		}
		return rag.IngestResult{
			DocumentID: "file_" + filename,
			Title:      filename,
			ChunkCount: len(data),
			Status:     "ok",
		}, nil
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	body, contentType := multipartUpload(t, map[string]string{
		"notes.txt": "hello world",
		"bad.xyz":   "???",
	})
	resp, err := http.Post(srv.URL+"/api/v1/documents", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out ingestResults
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("got %d results, want one per file", len(out.Results))
	}

	byName := map[string]IngestItem{}
	for _, item := range out.Results {
		byName[item.Filename] = item
	}
	if item := byName["notes.txt"]; item.Status != "ok" || item.DocumentID != "file_notes.txt" {
		t.Errorf("notes.txt item = %+v", item)
	}
	if item := byName["bad.xyz"]; item.Status != "error" || item.Error != "unsupported file format" {
		t.Errorf("bad.xyz item = %+v, sibling failure must be reported per item", item)
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	srv := newTestServer(t, &stubEngine{}, &stubPinger{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("name", "no file here")
	_ = w.Close()

	resp, err := http.Post(srv.URL+"/api/v1/documents", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestURL(t *testing.T) {
	var gotURL string
	var gotDynamic bool
	engine := &stubEngine{ingestURLFn: func(url string, dynamic bool) ([]rag.IngestResult, error) {
		gotURL, gotDynamic = url, dynamic
		return []rag.IngestResult{
			{DocumentID: "web_a", Source: url, ChunkCount: 3, Status: "ok"},
			{DocumentID: "web_b", Source: url + "/about", Status: "error", Error: "no chunks"},
		}, nil
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	resp := postJSON(t, srv.URL+"/api/v1/documents/url", `{"url":"https://example.com","dynamic":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if gotURL != "https://example.com" || !gotDynamic {
		t.Errorf("engine received url=%q dynamic=%v", gotURL, gotDynamic)
	}

	var out ingestResults
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(out.Results))
	}
	if out.Results[0].URL != "https://example.com" || out.Results[1].Status != "error" {
		t.Errorf("results = %+v", out.Results)
	}
}

func TestIngestURLValidation(t *testing.T) {
	srv := newTestServer(t, &stubEngine{}, &stubPinger{})

	for name, body := range map[string]string{
		"malformed json": `{"url":`,
		"relative url":   `{"url":"/just/a/path"}`,
		"bad scheme":     `{"url":"ftp://example.com"}`,
		"empty url":      `{"url":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/v1/documents/url", body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestIngestURLFetchFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unreachable", webpage.ErrUnreachableHost, http.StatusBadGateway},
		{"timeout", webpage.ErrFetchTimeout, http.StatusGatewayTimeout},
		{"blocked target", webpage.ErrBlockedURL, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{ingestURLFn: func(string, bool) ([]rag.IngestResult, error) {
				return nil, tt.err
			}}
			srv := newTestServer(t, engine, &stubPinger{})

			resp := postJSON(t, srv.URL+"/api/v1/documents/url", `{"url":"https://down.example.com"}`)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestListDocuments(t *testing.T) {
	engine := &stubEngine{docs: []knowledge.Document{
		{ID: "file_a", Title: "a.pdf"},
		{ID: "web_b", Title: "Example"},
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	resp, err := http.Get(srv.URL + "/api/v1/documents")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Documents []knowledge.Document `json:"documents"`
		Total     int                  `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if out.Total != 2 || len(out.Documents) != 2 {
		t.Errorf("out = %+v", out)
	}
}

func TestListDocumentsEmpty(t *testing.T) {
	srv := newTestServer(t, &stubEngine{}, &stubPinger{})

	resp, err := http.Get(srv.URL + "/api/v1/documents")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"documents":[]`)) {
		t.Errorf("empty registry must serialize as an array, got %s", buf.String())
	}
}

func TestDeleteDocument(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(t, engine, &stubPinger{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/documents/file_abc", http.NoBody)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if len(engine.deleted) != 1 || engine.deleted[0] != "file_abc" {
		t.Errorf("deleted = %v", engine.deleted)
	}
}

func TestDeleteMissingDocument(t *testing.T) {
	engine := &stubEngine{deleteErr: knowledge.ErrNotFound}
	srv := newTestServer(t, engine, &stubPinger{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/documents/ghost", http.NoBody)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestIngestErrorMessageTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{loader.ErrUnsupportedFormat, "unsupported file format"},
		{loader.ErrCorruptFile, "file could not be parsed"},
		{webpage.ErrFetchTimeout, "fetching the page timed out"},
		{webpage.ErrUnreachableHost, "the host could not be reached"},
		{webpage.ErrNoContent, "no readable content on the page"},
		{errors.New("anything else"), "ingestion failed"},
	}
	for _, tt := range tests {
		if got := ingestErrorMessage(tt.err); got != tt.want {
			t.Errorf("ingestErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
