package loader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mainContentSelectors are tried in order before falling back to <body>.
var mainContentSelectors = []string{"article", "main", `[role="main"]`, "#content", ".content"}

// extractHTML pulls readable text from a saved HTML file: boilerplate
// elements are dropped, then paragraphs and headings inside the main content
// container are joined as paragraphs.
func extractHTML(name string, data []byte) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %s: %v", ErrCorruptFile, name, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = baseTitle(name)
	}

	text := htmlMainText(doc)
	if text == "" {
		return Extraction{}, fmt.Errorf("%w: %s contains no readable text", ErrCorruptFile, name)
	}

	return Extraction{
		Format: FormatHTML,
		Title:  title,
		Pages:  []Page{{Text: text}},
	}, nil
}

// htmlMainText strips boilerplate and joins paragraph/heading text.
func htmlMainText(doc *goquery.Document) string {
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
	if len(parts) == 0 {
		// No block elements at all; fall back to the container's raw text.
		return strings.TrimSpace(root.Text())
	}
	return strings.Join(parts, "\n\n")
}
