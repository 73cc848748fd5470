package webpage

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeRenderer renders script-dependent pages in a headless Chrome
// instance through the DevTools protocol.
type ChromeRenderer struct {
	timeout time.Duration
}

// NewChromeRenderer creates a ChromeRenderer. Each Render call spawns its
// own browser context, bounded by timeout when positive and by the caller's
// context otherwise.
func NewChromeRenderer(timeout time.Duration) *ChromeRenderer {
	return &ChromeRenderer{timeout: timeout}
}

// Render navigates to pageURL, waits for the document to become ready, and
// returns the resulting HTML.
func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", pageURL, err)
	}
	return html, nil
}
