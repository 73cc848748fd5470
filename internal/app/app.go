// Package app wires configuration, storage, the Gemini client and the
// answering engine into one container with a single setup and teardown path.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/koopa0/docchat/db"
	"github.com/koopa0/docchat/internal/config"
	"github.com/koopa0/docchat/internal/gemini"
	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/loader"
	"github.com/koopa0/docchat/internal/loader/ocr"
	"github.com/koopa0/docchat/internal/log"
	"github.com/koopa0/docchat/internal/memory"
	"github.com/koopa0/docchat/internal/rag"
	"github.com/koopa0/docchat/internal/security"
	"github.com/koopa0/docchat/internal/webpage"
	"github.com/koopa0/docchat/internal/websearch"
)

// App is the application container. Setup builds it top to bottom; Close
// releases everything in reverse order.
type App struct {
	Config    *config.Config
	Logger    log.Logger
	Pool      *pgxpool.Pool
	Knowledge *knowledge.Store
	Gemini    *gemini.Client
	Engine    *rag.Engine

	lock *flock.Flock
}

// Setup initializes the full application: data-directory lock, database
// pool with vector type registration, migrations, the Gemini client and
// the engine with all ingestion collaborators.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	lock, err := acquireDataLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		lockRelease(lock, logger)
		return nil, err
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		pool.Close()
		lockRelease(lock, logger)
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	client, err := gemini.New(ctx, geminiConfig(cfg), logger.With("component", "gemini"))
	if err != nil {
		pool.Close()
		lockRelease(lock, logger)
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	store := knowledge.New(pool, cfg.EmbeddingDimension, logger.With("component", "knowledge"))

	fetcher := webpage.NewFetcher(cfg.FetchTimeout, webpage.NewChromeRenderer(cfg.RenderTimeout),
		logger.With("component", "webpage"), webpage.WithGuard(security.NewURL()))
	crawler := webpage.NewCrawler(fetcher, cfg.MaxCrawlDepth, logger.With("component", "crawler"))
	extractor := loader.New(&ocr.Tesseract{}, logger.With("component", "loader"))

	var searcher rag.WebSearcher
	if cfg.SearchAPIKey != "" {
		searcher = websearch.New(cfg.SearchAPIKey, cfg.FetchTimeout, logger.With("component", "websearch"))
	}

	engine, err := rag.NewEngine(rag.Options{
		Store:     store,
		Embedder:  client,
		Generator: client,
		Web:       searcher,
		Extractor: extractor,
		Pages:     fetcher,
		Crawler:   crawler,
		Memory:    memory.New(cfg.MaxTurns),
		Config: rag.Config{
			TopK:                   cfg.TopK,
			MinScore:               cfg.MinScore,
			InsufficiencyThreshold: cfg.InsufficiencyThreshold,
			ContextBudget:          cfg.ContextBudget,
			SearchTimeout:          cfg.SearchTimeout,
			ChunkSize:              cfg.ChunkSize,
			ChunkOverlap:           cfg.ChunkOverlap,
			ContextWindow:          cfg.ContextWindow,
			WebSearchEnabled:       cfg.WebSearchEnabled && cfg.SearchAPIKey != "",
		},
		Logger: logger.With("component", "rag"),
	})
	if err != nil {
		pool.Close()
		lockRelease(lock, logger)
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Knowledge: store,
		Gemini:    client,
		Engine:    engine,
		lock:      lock,
	}, nil
}

// Close releases the database pool and the data-directory lock.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			return fmt.Errorf("releasing data lock: %w", err)
		}
	}
	return nil
}

// geminiConfig maps the application configuration onto the Gemini client's.
func geminiConfig(cfg *config.Config) gemini.Config {
	return gemini.Config{
		APIKey:             cfg.APIKey,
		Model:              cfg.Model,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingDimension: cfg.EmbeddingDimension,
		Temperature:        cfg.Temperature,
		MaxTokens:          cfg.MaxTokens,
		Timeout:            cfg.LLMTimeout,
		MaxRetries:         cfg.MaxRetries,
		RequestsPerMinute:  cfg.RequestsPerMinute,
	}
}

// openPool connects to PostgreSQL and registers the pgvector codec on every
// new connection.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// acquireDataLock guards the data directory against a second instance.
func acquireDataLock(dataDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, "docchat.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring data lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another docchat instance holds %s", lock.Path())
	}
	return lock, nil
}

func lockRelease(lock *flock.Flock, logger log.Logger) {
	if err := lock.Unlock(); err != nil {
		logger.Warn("failed to release data lock", "error", err)
	}
}
