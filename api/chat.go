package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/koopa0/docchat/internal/log"
	"github.com/koopa0/docchat/internal/rag"
)

// MaxQuestionLength bounds chat input.
const MaxQuestionLength = 4000

// ChatHandler serves question answering and session management.
type ChatHandler struct {
	engine Engine
	logger log.Logger
}

func NewChatHandler(engine Engine, logger log.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.chat)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.clearSession)
}

// ChatRequest is the chat endpoint's request body. SessionID is optional;
// a fresh one is issued when absent. Filter pins the request to a source.
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	Filter    struct {
		Type       string `json:"type,omitempty"` // local, web, document, latest
		DocumentID string `json:"document_id,omitempty"`
	} `json:"filter"`
}

// ChatResponse wraps the answer with the session id the client should carry
// into follow-up questions.
type ChatResponse struct {
	rag.Answer
	SessionID string `json:"session_id"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if len(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "question too long (max 4000 characters)")
		return
	}

	filter, err := parseFilter(req.Filter.Type, req.Filter.DocumentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	answer, err := h.engine.Chat(r.Context(), rag.ChatRequest{
		Question:  req.Question,
		SessionID: sessionID,
		Filter:    filter,
	})
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "invalid_request", "question is empty")
		return
	case errors.Is(err, rag.ErrLLMUnavailable):
		h.logger.Error("chat failed, model unavailable", "session", sessionID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "llm_unavailable", "the language model is temporarily unavailable")
		return
	case err != nil:
		h.logger.Error("chat failed", "session", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to answer the question")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer, SessionID: sessionID})
}

func (h *ChatHandler) clearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session id is required")
		return
	}
	h.engine.ClearHistory(id)
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(kind, documentID string) (rag.SourceFilter, error) {
	switch rag.FilterKind(kind) {
	case rag.FilterNone, rag.FilterLocal, rag.FilterWeb, rag.FilterLatest:
		return rag.SourceFilter{Kind: rag.FilterKind(kind)}, nil
	case rag.FilterDocument:
		if documentID == "" {
			return rag.SourceFilter{}, errors.New("document filter requires document_id")
		}
		return rag.SourceFilter{Kind: rag.FilterDocument, DocumentID: documentID}, nil
	default:
		return rag.SourceFilter{}, errors.New("unknown filter type: " + kind)
	}
}
