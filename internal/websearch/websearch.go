// Package websearch queries the Serper.dev search API when local retrieval
// comes up short. Results are mapped onto retrieval results with synthetic
// scores so they merge with local hits while staying distinguishable.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/koopa0/docchat/internal/knowledge"
)

// ErrSearchFailed indicates the search API was unreachable or returned an
// error. Callers degrade to local-only context.
var ErrSearchFailed = errors.New("web search failed")

const (
	defaultEndpoint = "https://google.serper.dev/search"

	// topOrganic caps how many organic results become pseudo-chunks.
	topOrganic = 3

	// Synthetic scores sit above the insufficiency threshold but below a
	// strong local match, decaying by rank so ordering is deterministic.
	baseScore = 0.66
	rankStep  = 0.06
)

// response mirrors the Serper JSON envelope, fields we use only.
type response struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"knowledgeGraph"`
}

// Client calls the Serper.dev API.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// New creates a Client. An empty API key is allowed; Search then fails with
// ErrSearchFailed and the caller degrades gracefully.
func New(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Search runs query against the web and returns pseudo-chunks with
// origin=web and synthetic descending scores.
func (c *Client) Search(ctx context.Context, query string) ([]knowledge.Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrSearchFailed)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrSearchFailed)
	}

	payload, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding query: %v", ErrSearchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSearchFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSearchFailed, err)
	}

	results := toResults(decoded)
	c.logger.Debug("web search completed", "query", query, "results", len(results))
	return results, nil
}

// toResults maps the top organic hits plus the knowledge graph block onto
// retrieval results. Rank order determines the synthetic score.
func toResults(decoded response) []knowledge.Result {
	var results []knowledge.Result
	rank := 0

	for _, org := range decoded.Organic {
		if rank >= topOrganic {
			break
		}
		text := strings.TrimSpace(org.Snippet)
		if text == "" {
			continue
		}
		results = append(results, knowledge.Result{
			ChunkID:    fmt.Sprintf("web:%d", rank),
			DocumentID: org.Link,
			Index:      rank,
			Text:       text,
			Title:      org.Title,
			Source:     org.Link,
			Score:      syntheticScore(rank),
			Origin:     knowledge.OriginWeb,
		})
		rank++
	}

	if kg := decoded.KnowledgeGraph; kg != nil && strings.TrimSpace(kg.Description) != "" {
		title := kg.Title
		if kg.Type != "" {
			title = fmt.Sprintf("%s (%s)", kg.Title, kg.Type)
		}
		results = append(results, knowledge.Result{
			ChunkID:    fmt.Sprintf("web:%d", rank),
			DocumentID: "knowledge-graph",
			Index:      rank,
			Text:       strings.TrimSpace(kg.Description),
			Title:      title,
			Source:     "knowledge-graph",
			Score:      syntheticScore(rank),
			Origin:     knowledge.OriginWeb,
		})
	}

	return results
}

func syntheticScore(rank int) float32 {
	score := baseScore - rankStep*float64(rank)
	if score < 0 {
		return 0
	}
	return float32(score)
}
