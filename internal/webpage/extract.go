package webpage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// mainContentSelectors are tried in order by the goquery fallback before
// giving up and using <body>.
var mainContentSelectors = []string{"article", "main", `[role="main"]`, "#content", ".content"}

// extract turns raw HTML into a Page. Readability handles article-shaped
// pages well; when it finds nothing (index pages, dashboards) the goquery
// fallback strips boilerplate and joins block text instead.
func (f *Fetcher) extract(pageURL, htmlSrc string) (Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("invalid url %q: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		// goquery's parser (x/net/html) recovers from almost anything; an
		// error here means the input is not markup at all.
		return Page{}, fmt.Errorf("%w: %s: parsing: %v", ErrNoContent, pageURL, err)
	}

	page := Page{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: sameHostLinks(doc, parsed),
	}

	if article, rerr := readability.FromReader(strings.NewReader(htmlSrc), parsed); rerr == nil {
		if text := normalizeWhitespace(article.TextContent); text != "" {
			if article.Title != "" {
				page.Title = article.Title
			}
			page.Text = text
			return page, nil
		}
	}

	if text := fallbackText(doc); text != "" {
		f.logger.Debug("readability found nothing, used fallback extraction", "url", pageURL)
		page.Text = text
		return page, nil
	}

	// Last resort for markup so broken that block selection finds nothing:
	// walk every text node in the raw parse tree.
	if text := rawTextNodes(htmlSrc); text != "" {
		f.logger.Debug("used raw text node extraction", "url", pageURL)
		page.Text = text
		return page, nil
	}

	return Page{}, fmt.Errorf("%w: %s", ErrNoContent, pageURL)
}

// fallbackText strips boilerplate elements and joins paragraph and heading
// text from the main content container.
func fallbackText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, iframe").Remove()

	var root *goquery.Selection
	for _, sel := range mainContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			root = s
			break
		}
	}
	if root == nil {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		return ""
	}

	var parts []string
	root.Find("p, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

// rawTextNodes collects text from every text node outside script and style
// elements. html.Parse never fails on (even severely malformed) markup, so
// this finds whatever prose the page carries when structural extraction
// comes up empty.
func rawTextNodes(htmlSrc string) string {
	root, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return ""
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "title", "nav", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(parts, "\n")
}

// sameHostLinks resolves every anchor against the page URL and keeps those
// pointing at the same host, deduplicated in document order.
func sameHostLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host || (abs.Scheme != "http" && abs.Scheme != "https") {
			return
		}
		abs.Fragment = ""
		link := abs.String()
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	return links
}

// normalizeWhitespace collapses runs of blank lines and trims each line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
