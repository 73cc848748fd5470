// Package api exposes the document-chat engine over HTTP.
//
// Endpoints:
//
//	GET    /health                      liveness probe
//	GET    /ready                       readiness probe (pings the database)
//	POST   /api/v1/chat                 ask a question
//	DELETE /api/v1/sessions/{id}        clear one session's history
//	POST   /api/v1/documents            upload a file (multipart)
//	POST   /api/v1/documents/url        ingest a web page or crawl
//	GET    /api/v1/documents            list ingested documents
//	DELETE /api/v1/documents/{id}       delete a document and its chunks
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/log"
	"github.com/koopa0/docchat/internal/rag"
)

const (
	// DefaultAddr binds to loopback; the service carries no authentication.
	DefaultAddr = "127.0.0.1:8490"

	// ShutdownTimeout is the maximum wait for in-flight requests on shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to stop slow-client exhaustion.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout covers the whole request body, including file uploads.
	ReadTimeout = 120 * time.Second

	// WriteTimeout must outlast a full chat round trip through the model.
	WriteTimeout = 120 * time.Second

	// IdleTimeout closes stale keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Engine is the answering and ingestion surface the handlers sit on,
// satisfied by rag.Engine.
type Engine interface {
	Chat(ctx context.Context, req rag.ChatRequest) (rag.Answer, error)
	IngestFile(ctx context.Context, filename string, data []byte) (rag.IngestResult, error)
	IngestURL(ctx context.Context, url string, dynamic bool) ([]rag.IngestResult, error)
	Documents(ctx context.Context) ([]knowledge.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error
	ClearHistory(sessionID string)
}

// Pinger reports database reachability, satisfied by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server routes HTTP requests to the engine.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health    *HealthHandler
	chat      *ChatHandler
	documents *DocumentHandler
}

// NewServer registers all routes on a fresh mux.
func NewServer(engine Engine, db Pinger, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    NewHealthHandler(db, logger),
		chat:      NewChatHandler(engine, logger),
		documents: NewDocumentHandler(engine, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)

	return s
}

// Handler returns the routing handler with middleware applied.
// Order: recovery outermost, then logging.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
