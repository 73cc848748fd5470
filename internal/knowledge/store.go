// Package knowledge implements the persistent vector store for docchat.
//
// Chunks and their embeddings live in PostgreSQL with the pgvector extension.
// The documents and chunks tables are owned exclusively by this package; no
// other component reads or writes them directly.
//
// Concurrency: similarity searches run concurrently under MVCC snapshots.
// Mutations are transactional and serialized per document with an advisory
// lock, so a reader never observes a half-replaced chunk set. Embedding
// generation (blocking network I/O) happens before the transaction opens.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrDimensionMismatch indicates a vector's dimension differs from the
	// store's fixed dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyUpsert indicates an upsert with no entries.
	ErrEmptyUpsert = errors.New("no entries to upsert")
)

// DB is the subset of pgxpool.Pool the store depends on. Consumer-defined so
// tests can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists (chunk, vector, metadata) entries and serves similarity
// search over them. Safe for concurrent use.
type Store struct {
	db        DB
	dimension int
	logger    *slog.Logger
}

// New creates a Store bound to db with a fixed embedding dimension.
// Vectors of any other dimension are rejected with ErrDimensionMismatch.
func New(db DB, dimension int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dimension: dimension, logger: logger}
}

// Dimension returns the store's fixed embedding dimension.
func (s *Store) Dimension() int { return s.dimension }

// UpsertDocument atomically replaces a document and all of its chunks.
// Running it twice with identical input converges on the same chunk set,
// which makes interrupted ingestions safe to retry.
func (s *Store) UpsertDocument(ctx context.Context, doc Document, entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyUpsert
	}
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: got %d, store uses %d", ErrDimensionMismatch, len(e.Vector), s.dimension)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize writers per document. Readers are unaffected (MVCC).
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doc.ID); err != nil {
		return fmt.Errorf("acquiring document lock: %w", err)
	}

	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, source_type, title, source, page_count, chunk_count, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			source_type = EXCLUDED.source_type,
			title       = EXCLUDED.title,
			source      = EXCLUDED.source,
			page_count  = EXCLUDED.page_count,
			chunk_count = EXCLUDED.chunk_count,
			ingested_at = EXCLUDED.ingested_at`,
		doc.ID, doc.SourceType, doc.Title, doc.Source, doc.PageCount, len(entries), ingestedAt)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	// Replace-by-document: drop old chunks, insert the new set in a batch.
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clearing chunks for %q: %w", doc.ID, err)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		metadataJSON, marshalErr := json.Marshal(e.Chunk.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("marshaling chunk metadata: %w", marshalErr)
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, chunk_index, content, page, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.Chunk.ID(), e.Chunk.DocumentID, e.Chunk.Index, e.Chunk.Text, e.Chunk.Page,
			pgvector.NewVector(e.Vector), metadataJSON)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting %d chunks for %q: %w", len(entries), doc.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert for %q: %w", doc.ID, err)
	}

	s.logger.Debug("document upserted", "id", doc.ID, "chunks", len(entries))
	return nil
}

// SearchOption configures a similarity search.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK       int
	documentID string
	timeout    time.Duration
}

// WithTopK caps the number of results. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithDocument restricts the search to one document's chunks.
func WithDocument(documentID string) SearchOption {
	return func(c *searchConfig) { c.documentID = documentID }
}

// WithTimeout bounds the search query. Default is 10s.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Search returns the chunks nearest to queryVector, ranked by descending
// normalized cosine similarity. At most topK results are returned and every
// score lies in [0,1].
func (s *Store) Search(ctx context.Context, queryVector []float32, opts ...SearchOption) ([]Result, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store uses %d", ErrDimensionMismatch, len(queryVector), s.dimension)
	}

	cfg := &searchConfig{topK: 5, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	const baseQuery = `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.page,
		       d.title, d.source,
		       1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		JOIN documents d ON d.id = c.document_id`

	var (
		rows pgx.Rows
		err  error
	)
	vec := pgvector.NewVector(queryVector)
	if cfg.documentID != "" {
		rows, err = s.db.Query(queryCtx, baseQuery+`
			WHERE c.document_id = $2
			ORDER BY c.embedding <=> $1
			LIMIT $3`, vec, cfg.documentID, cfg.topK)
	} else {
		rows, err = s.db.Query(queryCtx, baseQuery+`
			ORDER BY c.embedding <=> $1
			LIMIT $2`, vec, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, cfg.topK)
	for rows.Next() {
		var r Result
		var similarity float64
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Index, &r.Text, &r.Page,
			&r.Title, &r.Source, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		r.Score = clampScore(similarity)
		r.Origin = OriginLocal
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// DeleteDocument removes a document and, by cascade, all of its chunks.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, documentID)
	}

	s.logger.Debug("document deleted", "id", documentID)
	return nil
}

// GetDocument returns one document's registry entry.
func (s *Store) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var d Document
	err := s.db.QueryRow(ctx, `
		SELECT id, source_type, title, source, page_count, chunk_count, ingested_at
		FROM documents WHERE id = $1`, documentID).
		Scan(&d.ID, &d.SourceType, &d.Title, &d.Source, &d.PageCount, &d.ChunkCount, &d.IngestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, documentID)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading document %q: %w", documentID, err)
	}
	return d, nil
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source_type, title, source, page_count, chunk_count, ingested_at
		FROM documents ORDER BY ingested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.SourceType, &d.Title, &d.Source,
			&d.PageCount, &d.ChunkCount, &d.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}
	return docs, nil
}

// LatestDocument returns the most recently ingested document. Used to
// resolve the "latest" chat source filter.
func (s *Store) LatestDocument(ctx context.Context) (Document, error) {
	var d Document
	err := s.db.QueryRow(ctx, `
		SELECT id, source_type, title, source, page_count, chunk_count, ingested_at
		FROM documents ORDER BY ingested_at DESC LIMIT 1`).
		Scan(&d.ID, &d.SourceType, &d.Title, &d.Source, &d.PageCount, &d.ChunkCount, &d.IngestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading latest document: %w", err)
	}
	return d, nil
}

// clampScore normalizes a pgvector cosine similarity into [0,1]. Cosine
// distance spans [0,2], so 1-distance can be slightly negative.
func clampScore(similarity float64) float32 {
	switch {
	case similarity < 0:
		return 0
	case similarity > 1:
		return 1
	default:
		return float32(similarity)
	}
}
