// Package rag coordinates retrieval-augmented answering: similarity
// retrieval with an insufficiency threshold, optional web-search fallback,
// prompt assembly under a context budget, a single bounded model invocation,
// and citation attribution back to the exact items the prompt contained.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/loader"
	"github.com/koopa0/docchat/internal/memory"
	"github.com/koopa0/docchat/internal/webpage"
)

var (
	// ErrContextInsufficient signals that the best local match scored below
	// the configured insufficiency threshold.
	ErrContextInsufficient = errors.New("retrieved context insufficient")

	// ErrLLMUnavailable indicates the model call failed after bounded
	// retries. The request fails visibly; no answer is fabricated.
	ErrLLMUnavailable = errors.New("language model unavailable")

	// ErrEmptyQuestion rejects blank chat input.
	ErrEmptyQuestion = errors.New("question is empty")
)

// noInformationAnswer is returned with zero confidence and no sources when
// nothing relevant could be retrieved.
const noInformationAnswer = "I could not find any relevant information in the available documents to answer your question. Please try rephrasing your question or ensure that the relevant document has been uploaded."

// noDocumentsAnswer is returned when a latest-document question arrives
// before anything was ingested.
const noDocumentsAnswer = "No documents have been uploaded yet. Please upload a document first."

// degradedNote is attached when the web fallback failed and the answer rests
// on weak local context only.
const degradedNote = "Web search was unavailable; this answer relies on low-confidence local context."

// Embedder converts text to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator is the pluggable language-model backend: prompt in, text out,
// bounded by the implementation's timeout and retry policy.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// VectorStore is the persistence seam, satisfied by knowledge.Store.
type VectorStore interface {
	UpsertDocument(ctx context.Context, doc knowledge.Document, entries []knowledge.Entry) error
	Search(ctx context.Context, queryVector []float32, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
	GetDocument(ctx context.Context, documentID string) (knowledge.Document, error)
	ListDocuments(ctx context.Context) ([]knowledge.Document, error)
	LatestDocument(ctx context.Context) (knowledge.Document, error)
}

// WebSearcher supplements weak local context with web results.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]knowledge.Result, error)
}

// Extractor turns file bytes into normalized text, satisfied by loader.Loader.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (loader.Extraction, error)
}

// PageSource fetches and crawls web pages, satisfied by webpage types.
type PageSource interface {
	Fetch(ctx context.Context, url string) (webpage.Page, error)
	FetchDynamic(ctx context.Context, url string) (webpage.Page, error)
}

// Crawler walks same-host links from a start URL.
type Crawler interface {
	Crawl(ctx context.Context, url string) ([]webpage.Page, error)
}

// Config tunes retrieval, assembly and chunking behavior.
type Config struct {
	TopK                   int
	MinScore               float32       // results below this are dropped outright
	InsufficiencyThreshold float32       // best score below this triggers fallback
	ContextBudget          int           // character budget for assembled context
	SearchTimeout          time.Duration // bound on one vector search; zero uses the store default
	ChunkSize              int
	ChunkOverlap           int
	ContextWindow          int // conversation turns included in the prompt
	WebSearchEnabled       bool
}

// Engine is the request-facing facade exposing Ingest, Chat and Delete. One
// Engine serves the whole process; every request runs its own pipeline.
type Engine struct {
	retriever *Retriever
	store     VectorStore
	generator Generator
	web       WebSearcher
	extractor Extractor
	pages     PageSource
	crawler   Crawler
	embedder  Embedder
	memory    *memory.Store
	cfg       Config
	logger    *slog.Logger
}

// Options carries the Engine's collaborators. WebSearcher, Extractor,
// PageSource and Crawler may be nil; the matching features degrade or reject.
type Options struct {
	Store     VectorStore
	Embedder  Embedder
	Generator Generator
	Web       WebSearcher
	Extractor Extractor
	Pages     PageSource
	Crawler   Crawler
	Memory    *memory.Store
	Config    Config
	Logger    *slog.Logger
}

// NewEngine validates the required collaborators and wires the pipeline.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.Memory == nil {
		opts.Memory = memory.New(memory.DefaultMaxTurns)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := withDefaults(opts.Config)

	return &Engine{
		retriever: NewRetriever(opts.Embedder, opts.Store, cfg, opts.Logger),
		store:     opts.Store,
		generator: opts.Generator,
		web:       opts.Web,
		extractor: opts.Extractor,
		pages:     opts.Pages,
		crawler:   opts.Crawler,
		embedder:  opts.Embedder,
		memory:    opts.Memory,
		cfg:       cfg,
		logger:    opts.Logger,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.TopK <= 0 {
		cfg.TopK = 6
	}
	if cfg.InsufficiencyThreshold <= 0 {
		cfg.InsufficiencyThreshold = 0.45
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 6000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 50
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 6
	}
	return cfg
}

// FilterKind selects which sources a chat request may draw from.
type FilterKind string

const (
	FilterNone     FilterKind = ""
	FilterLocal    FilterKind = "local"
	FilterWeb      FilterKind = "web"
	FilterDocument FilterKind = "document"
	FilterLatest   FilterKind = "latest"
)

// SourceFilter restricts retrieval for one chat request.
type SourceFilter struct {
	Kind       FilterKind
	DocumentID string // set when Kind is FilterDocument
}

// ChatRequest is one question within a session.
type ChatRequest struct {
	Question  string
	SessionID string
	Filter    SourceFilter
}

// Citation attributes part of an answer to a prompt-included item.
type Citation struct {
	Title  string           `json:"title"`
	Source string           `json:"source"`
	Page   int              `json:"page,omitempty"`
	Score  float32          `json:"score"`
	Origin knowledge.Origin `json:"type"`
}

// Answer is the terminal result of a successful chat request.
type Answer struct {
	Text       string     `json:"answer"`
	Sources    []Citation `json:"sources"`
	Confidence float32    `json:"confidence"`
	Note       string     `json:"note,omitempty"`
}

// latestKeywords mark questions that implicitly target the most recently
// ingested document.
var latestKeywords = []string{
	"this document", "the document", "this pdf", "the pdf", "this file", "the file",
}

// Chat answers a question through the full pipeline. Fatal errors return to
// the caller with no partial answer.
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	m := newMachine()
	if err := m.to(StateRetrieving); err != nil {
		return Answer{}, err
	}

	filter, early, done, err := e.resolveFilter(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	if done {
		_ = m.to(StateIdle)
		return early, nil
	}

	results, note, err := e.gatherContext(ctx, m, req.Question, filter)
	if err != nil {
		return Answer{}, err
	}

	if len(results) == 0 {
		e.logger.Info("no context retrieved", "session", req.SessionID)
		_ = m.to(StateIdle)
		return Answer{Text: noInformationAnswer, Sources: []Citation{}, Confidence: 0, Note: note}, nil
	}

	if err := m.to(StatePromptAssembly); err != nil {
		return Answer{}, err
	}
	history := e.memory.Context(req.SessionID, e.cfg.ContextWindow)
	assembled := assemblePrompt(req.Question, history, results, e.cfg.ContextBudget)

	if err := m.to(StateLLMInvocation); err != nil {
		return Answer{}, err
	}
	raw, err := e.generator.Generate(ctx, systemInstructions, assembled.Prompt)
	if err != nil {
		_ = m.to(StateIdle)
		return Answer{}, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	if err := m.to(StateResponseParsing); err != nil {
		return Answer{}, err
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		_ = m.to(StateIdle)
		return Answer{}, fmt.Errorf("%w: model returned empty output", ErrLLMUnavailable)
	}

	if err := m.to(StateSourceAttribution); err != nil {
		return Answer{}, err
	}
	answer := Answer{
		Text:       text,
		Sources:    citations(assembled.Included),
		Confidence: meanScore(assembled.Included),
		Note:       note,
	}

	cited := make([]string, len(answer.Sources))
	for i, c := range answer.Sources {
		cited[i] = c.Source
	}
	e.memory.Append(req.SessionID, memory.RoleUser, req.Question)
	e.memory.Append(req.SessionID, memory.RoleAssistant, answer.Text, cited...)

	if err := m.to(StateIdle); err != nil {
		return Answer{}, err
	}
	return answer, nil
}

// resolveFilter applies the latest-document heuristic and resolves
// FilterLatest to a concrete document id. done=true short-circuits with an
// early answer (latest requested with an empty store).
func (e *Engine) resolveFilter(ctx context.Context, req ChatRequest) (SourceFilter, Answer, bool, error) {
	filter := req.Filter

	if filter.Kind == FilterNone {
		lower := strings.ToLower(req.Question)
		for _, kw := range latestKeywords {
			if strings.Contains(lower, kw) {
				filter.Kind = FilterLatest
				break
			}
		}
	}

	if filter.Kind != FilterLatest {
		return filter, Answer{}, false, nil
	}

	doc, err := e.store.LatestDocument(ctx)
	if err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return filter, Answer{Text: noDocumentsAnswer, Sources: []Citation{}, Confidence: 0}, true, nil
		}
		return filter, Answer{}, false, fmt.Errorf("resolving latest document: %w", err)
	}
	return SourceFilter{Kind: FilterDocument, DocumentID: doc.ID}, Answer{}, false, nil
}

// gatherContext runs retrieval plus the fallback policy and returns the
// merged result set with an optional degradation note.
func (e *Engine) gatherContext(ctx context.Context, m *machine, question string, filter SourceFilter) ([]knowledge.Result, string, error) {
	// An explicit web filter bypasses local retrieval entirely.
	if filter.Kind == FilterWeb {
		if err := m.to(StateContextInsufficient); err != nil {
			return nil, "", err
		}
		return e.webFallback(ctx, m, question, nil)
	}

	results, err := e.retriever.Retrieve(ctx, question, filter)
	switch {
	case errors.Is(err, ErrContextInsufficient):
		if err := m.to(StateContextInsufficient); err != nil {
			return nil, "", err
		}
		// Local context stays weak: a document or local filter pins the
		// request to local sources, and a disabled fallback leaves them as-is.
		if !e.cfg.WebSearchEnabled || filter.Kind == FilterLocal || filter.Kind == FilterDocument {
			return results, "", nil
		}
		return e.webFallback(ctx, m, question, results)
	case err != nil:
		return nil, "", err
	default:
		if err := m.to(StateContextSufficient); err != nil {
			return nil, "", err
		}
		return results, "", nil
	}
}

// webFallback supplements weak local results with web search. Failure here
// never aborts the request; it degrades to the local results with a caveat.
func (e *Engine) webFallback(ctx context.Context, m *machine, question string, local []knowledge.Result) ([]knowledge.Result, string, error) {
	if err := m.to(StateWebFallback); err != nil {
		return nil, "", err
	}
	if e.web == nil {
		return local, degradedNote, nil
	}

	webResults, err := e.web.Search(ctx, question)
	if err != nil {
		e.logger.Warn("web fallback failed, degrading to local context", "error", err)
		note := ""
		if len(local) > 0 {
			note = degradedNote
		}
		return local, note, nil
	}
	return append(local, webResults...), "", nil
}

// ClearHistory resets one session's conversation memory.
func (e *Engine) ClearHistory(sessionID string) {
	e.memory.Clear(sessionID)
}

func citations(included []knowledge.Result) []Citation {
	out := make([]Citation, len(included))
	for i, r := range included {
		out[i] = Citation{
			Title:  r.Title,
			Source: r.Source,
			Page:   r.Page,
			Score:  r.Score,
			Origin: r.Origin,
		}
	}
	return out
}

func meanScore(included []knowledge.Result) float32 {
	if len(included) == 0 {
		return 0
	}
	var sum float32
	for _, r := range included {
		sum += r.Score
	}
	return sum / float32(len(included))
}
