// Package gemini wraps the Google GenAI SDK behind two narrow capabilities:
// text embedding and answer generation. A single Client is shared by the
// whole process and is safe for concurrent use.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

var (
	// ErrEmbedding indicates the embedding call failed or returned no vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration indicates a non-retryable generation failure.
	ErrGeneration = errors.New("generation failed")

	// ErrUnavailable indicates the model stayed unreachable after all retries.
	ErrUnavailable = errors.New("model unavailable")
)

// embedBatchLimit caps the number of texts per EmbedContent request.
const embedBatchLimit = 100

// Config controls model selection and call behavior.
type Config struct {
	APIKey             string
	Model              string
	EmbeddingModel     string
	EmbeddingDimension int
	Temperature        float32
	MaxTokens          int
	Timeout            time.Duration // hard deadline per attempt
	MaxRetries         int
	RequestsPerMinute  int
}

// Client is a process-wide Gemini client with rate limiting and retries.
type Client struct {
	genai   *genai.Client
	cfg     Config
	limiter *rate.Limiter
	retry   retryConfig
	logger  *slog.Logger
}

// New creates a Client backed by the Gemini API.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" || cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("gemini: model and embedding model are required")
	}
	if cfg.EmbeddingDimension <= 0 {
		return nil, fmt.Errorf("gemini: embedding dimension %d must be positive", cfg.EmbeddingDimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	rc := defaultRetryConfig()
	if cfg.MaxRetries > 0 {
		rc.MaxRetries = cfg.MaxRetries
	}

	return &Client{
		genai:   gc,
		cfg:     cfg,
		limiter: limiter,
		retry:   rc,
		logger:  logger,
	}, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request-sized batches, preserving input order.
// Every input must be non-empty; the model returns nothing useful for empty
// strings and a silent zero vector would poison similarity search.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", ErrEmbedding)
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmbedding, i)
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchLimit {
		end := min(start+embedBatchLimit, len(texts))
		batch, err := c.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	dim := int32(c.cfg.EmbeddingDimension)

	var resp *genai.EmbedContentResponse
	err := c.withRetry(ctx, "embed", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.genai.Models.EmbedContent(callCtx, c.cfg.EmbeddingModel, contents,
			&genai.EmbedContentConfig{OutputDimensionality: &dim})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbedding, len(texts), embeddingCount(resp))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrEmbedding, i)
		}
		if len(emb.Values) != c.cfg.EmbeddingDimension {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbedding, len(emb.Values), c.cfg.EmbeddingDimension)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}

// Generate runs a single blocking completion with the configured system
// instruction handling, temperature and token cap. Exhausted retries surface
// as ErrUnavailable so callers never fabricate an answer on failure.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrGeneration)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	var resp *genai.GenerateContentResponse
	err := c.withRetry(ctx, "generate", func(callCtx context.Context) error {
		var callErr error
		resp, callErr = c.genai.Models.GenerateContent(callCtx, c.cfg.Model, genai.Text(prompt), cfg)
		return callErr
	})
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: model returned no text", ErrGeneration)
	}
	return text, nil
}
