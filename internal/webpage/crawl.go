package webpage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gocolly/colly/v2"
)

// Crawler walks same-host links from a start URL to a bounded depth,
// extracting each visited page. Depth 1 means the start page only.
type Crawler struct {
	fetcher  *Fetcher
	maxDepth int
	logger   *slog.Logger
}

// NewCrawler creates a Crawler sharing the Fetcher's extraction pipeline.
func NewCrawler(fetcher *Fetcher, maxDepth int, logger *slog.Logger) *Crawler {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{fetcher: fetcher, maxDepth: maxDepth, logger: logger}
}

// Crawl visits startURL and, depth permitting, every same-host link reachable
// from it. Pages that fail to fetch or extract are logged and skipped; the
// crawl fails only when the start page itself is unreachable.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]Page, error) {
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("invalid url %q", startURL)
	}
	if err := c.fetcher.vet(startURL); err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(start.Hostname()),
		colly.MaxDepth(c.maxDepth),
		colly.UserAgent("docchat/1.0"),
	)
	collector.SetRequestTimeout(c.fetcher.timeout)

	var mu sync.Mutex
	var pages []Page

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		// Links can leave the vetted start page; every hop is re-checked.
		if err := c.fetcher.vet(r.URL.String()); err != nil {
			c.logger.Warn("skipping blocked url", "url", r.URL, "error", err)
			r.Abort()
		}
	})

	collector.OnResponse(func(resp *colly.Response) {
		page, exErr := c.fetcher.extract(resp.Request.URL.String(), string(resp.Body))
		if exErr != nil {
			c.logger.Warn("skipping page", "url", resp.Request.URL, "error", exErr)
			return
		}
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		// Visit enforces AllowedDomains, MaxDepth and the visited set.
		_ = e.Request.Visit(e.Attr("href"))
	})

	if err := collector.Visit(startURL); err != nil {
		return nil, classifyFetchErr(startURL, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, startURL)
	}
	return pages, nil
}
