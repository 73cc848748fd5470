package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/koopa0/docchat/internal/rag"
)

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeChat(t *testing.T, resp *http.Response) ChatResponse {
	t.Helper()
	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestChatEndpoint(t *testing.T) {
	var captured rag.ChatRequest
	engine := &stubEngine{chatFn: func(req rag.ChatRequest) (rag.Answer, error) {
		captured = req
		return rag.Answer{
			Text:       "The warehouse holds 40 pallets.",
			Sources:    []rag.Citation{{Title: "inventory.pdf", Score: 0.9}},
			Confidence: 0.9,
		}, nil
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	resp := postJSON(t, srv.URL+"/api/v1/chat", `{"question":"how many pallets?","session_id":"s-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	out := decodeChat(t, resp)
	if out.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want the caller's id echoed", out.SessionID)
	}
	if out.Text != "The warehouse holds 40 pallets." || len(out.Sources) != 1 {
		t.Errorf("answer = %+v", out.Answer)
	}
	if captured.Question != "how many pallets?" || captured.SessionID != "s-1" {
		t.Errorf("engine received %+v", captured)
	}
}

func TestChatIssuesSessionID(t *testing.T) {
	srv := newTestServer(t, &stubEngine{}, &stubPinger{})

	resp := postJSON(t, srv.URL+"/api/v1/chat", `{"question":"hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if out := decodeChat(t, resp); out.SessionID == "" {
		t.Error("missing session id must be issued by the server")
	}
}

func TestChatDocumentFilter(t *testing.T) {
	var captured rag.ChatRequest
	engine := &stubEngine{chatFn: func(req rag.ChatRequest) (rag.Answer, error) {
		captured = req
		return rag.Answer{Text: "ok"}, nil
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	resp := postJSON(t, srv.URL+"/api/v1/chat",
		`{"question":"q","filter":{"type":"document","document_id":"file_abc"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if captured.Filter.Kind != rag.FilterDocument || captured.Filter.DocumentID != "file_abc" {
		t.Errorf("engine received filter %+v", captured.Filter)
	}
}

func TestChatBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"question":`},
		{"unknown filter", `{"question":"q","filter":{"type":"magic"}}`},
		{"document filter without id", `{"question":"q","filter":{"type":"document"}}`},
		{"oversized question", `{"question":"` + strings.Repeat("a", MaxQuestionLength+1) + `"}`},
	}

	srv := newTestServer(t, &stubEngine{}, &stubPinger{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/v1/chat", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestChatEmptyQuestionIs400(t *testing.T) {
	engine := &stubEngine{chatFn: func(rag.ChatRequest) (rag.Answer, error) {
		return rag.Answer{}, rag.ErrEmptyQuestion
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	resp := postJSON(t, srv.URL+"/api/v1/chat", `{"question":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatModelUnavailableIs503(t *testing.T) {
	engine := &stubEngine{chatFn: func(rag.ChatRequest) (rag.Answer, error) {
		return rag.Answer{}, rag.ErrLLMUnavailable
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	resp := postJSON(t, srv.URL+"/api/v1/chat", `{"question":"q"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if errResp.Error != "llm_unavailable" {
		t.Errorf("error code = %q", errResp.Error)
	}
}

func TestClearSession(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(t, engine, &stubPinger{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/sessions/s-9", http.NoBody)
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
	if len(engine.cleared) != 1 || engine.cleared[0] != "s-9" {
		t.Errorf("cleared = %v", engine.cleared)
	}
}

func TestChatResponseShape(t *testing.T) {
	engine := &stubEngine{chatFn: func(rag.ChatRequest) (rag.Answer, error) {
		return rag.Answer{
			Text:       "answer",
			Sources:    []rag.Citation{},
			Confidence: 0,
			Note:       "",
		}, nil
	}}
	srv := newTestServer(t, engine, &stubPinger{})

	resp := postJSON(t, srv.URL+"/api/v1/chat", `{"question":"q","session_id":"s"}`)
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("reading body: %v", err)
	}

	body := buf.String()
	if !strings.Contains(body, `"sources":[]`) {
		t.Errorf("sources must serialize as an empty array, got %s", body)
	}
	if strings.Contains(body, `"note"`) {
		t.Errorf("empty note must be omitted, got %s", body)
	}
}
