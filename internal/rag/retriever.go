package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/koopa0/docchat/internal/knowledge"
)

// Retriever embeds a question and queries the vector store, applying the
// minimum-score and insufficiency thresholds.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	cfg      Config
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. cfg is assumed to carry defaults already.
func NewRetriever(embedder Embedder, store VectorStore, cfg Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Retrieve returns the surviving results sorted by descending score. When
// the best surviving score sits below the insufficiency threshold the
// results are returned together with ErrContextInsufficient so the caller
// can decide whether to supplement them.
func (r *Retriever) Retrieve(ctx context.Context, question string, filter SourceFilter) ([]knowledge.Result, error) {
	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	opts := []knowledge.SearchOption{knowledge.WithTopK(r.cfg.TopK)}
	if r.cfg.SearchTimeout > 0 {
		opts = append(opts, knowledge.WithTimeout(r.cfg.SearchTimeout))
	}
	if filter.Kind == FilterDocument && filter.DocumentID != "" {
		opts = append(opts, knowledge.WithDocument(filter.DocumentID))
	}

	hits, err := r.store.Search(ctx, vector, opts...)
	if err != nil {
		return nil, fmt.Errorf("vector store search: %w", err)
	}

	results := hits[:0]
	for _, hit := range hits {
		if hit.Score >= r.cfg.MinScore {
			results = append(results, hit)
		}
	}

	if len(results) == 0 || results[0].Score < r.cfg.InsufficiencyThreshold {
		r.logger.Debug("local context insufficient",
			"hits", len(hits),
			"surviving", len(results),
			"threshold", r.cfg.InsufficiencyThreshold,
		)
		return results, ErrContextInsufficient
	}
	return results, nil
}
