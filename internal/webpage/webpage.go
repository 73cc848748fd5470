// Package webpage turns live URLs into normalized text for ingestion.
//
// A Fetcher retrieves and extracts a single page; a Crawler walks same-host
// links to a bounded depth; a Renderer (optional) produces HTML for pages
// that only materialize content through scripts.
package webpage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrFetchTimeout indicates the page did not respond within the deadline.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrUnreachableHost indicates DNS or connection failure.
	ErrUnreachableHost = errors.New("unreachable host")

	// ErrNoContent indicates the page fetched but yielded no readable text.
	ErrNoContent = errors.New("no readable content")

	// ErrBlockedURL indicates the guard refused the target.
	ErrBlockedURL = errors.New("blocked url")
)

// maxBodySize caps page downloads.
const maxBodySize = 10 << 20 // 10MB

// Page is the extracted content of one URL.
type Page struct {
	URL   string
	Title string
	Text  string
	Links []string // absolute same-host links found on the page
}

// Renderer produces the final HTML of a script-dependent page. Implemented
// by the chromedp-backed renderer; nil disables dynamic fetching.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Guard vets fetch targets before any connection is made, satisfied by
// security.URL. A nil guard allows everything.
type Guard interface {
	Validate(rawURL string) error
	ValidateRedirect(req *http.Request, via []*http.Request) error
	SafeTransport() *http.Transport
}

// Fetcher retrieves pages over HTTP and extracts their readable text.
type Fetcher struct {
	client   *http.Client
	renderer Renderer
	guard    Guard
	timeout  time.Duration
	logger   *slog.Logger
}

// Option tunes a Fetcher.
type Option func(*Fetcher)

// WithGuard installs a URL guard. The guard vets the requested URL, every
// redirect hop, and the resolved addresses of every connection.
func WithGuard(g Guard) Option {
	return func(f *Fetcher) { f.guard = g }
}

// NewFetcher creates a Fetcher with a hardened HTTP client: bounded timeout,
// bounded redirects, response size limit.
func NewFetcher(timeout time.Duration, renderer Renderer, logger *slog.Logger, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	f := &Fetcher{
		renderer: renderer,
		timeout:  timeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			if f.guard != nil {
				return f.guard.ValidateRedirect(req, via)
			}
			return nil
		},
	}
	if f.guard != nil {
		f.client.Transport = f.guard.SafeTransport()
	}
	return f
}

// Fetch downloads and extracts a static page.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	html, err := f.fetchHTML(ctx, pageURL)
	if err != nil {
		return Page{}, err
	}
	return f.extract(pageURL, html)
}

// FetchDynamic renders the page in a headless browser before extraction.
// Falls back to a static fetch when no renderer is configured.
func (f *Fetcher) FetchDynamic(ctx context.Context, pageURL string) (Page, error) {
	if f.renderer == nil {
		f.logger.Warn("no renderer configured, fetching statically", "url", pageURL)
		return f.Fetch(ctx, pageURL)
	}
	if err := f.vet(pageURL); err != nil {
		return Page{}, err
	}

	renderCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	html, err := f.renderer.Render(renderCtx, pageURL)
	if err != nil {
		return Page{}, classifyFetchErr(pageURL, err)
	}
	return f.extract(pageURL, html)
}

// vet applies the guard, if any.
func (f *Fetcher) vet(pageURL string) error {
	if f.guard == nil {
		return nil
	}
	if err := f.guard.Validate(pageURL); err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}
	return nil
}

func (f *Fetcher) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return "", fmt.Errorf("invalid url %q: %w", pageURL, err)
	}
	if err := f.vet(pageURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "docchat/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classifyFetchErr(pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned status %d", ErrUnreachableHost, pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", classifyFetchErr(pageURL, err)
	}
	return string(body), nil
}

// classifyFetchErr maps transport errors onto the ingestion error taxonomy.
func classifyFetchErr(pageURL string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", ErrFetchTimeout, pageURL, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %v", ErrFetchTimeout, pageURL, err)
	// http.Client wraps the timeout reason as text; no typed error is exposed.
	case strings.Contains(err.Error(), "Client.Timeout"):
		return fmt.Errorf("%w: %s: %v", ErrFetchTimeout, pageURL, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnreachableHost, pageURL, err)
	}
}
