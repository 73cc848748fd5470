package loader

import (
	"fmt"
	"strings"
)

func extractText(name string, data []byte) (Extraction, error) {
	text, err := normalizeText(name, data)
	if err != nil {
		return Extraction{}, err
	}
	if text == "" {
		return Extraction{}, fmt.Errorf("%w: %s contains no text", ErrCorruptFile, name)
	}

	return Extraction{
		Format: FormatText,
		Title:  baseTitle(name),
		Pages:  []Page{{Text: text}},
	}, nil
}

// extractMarkdown keeps the markdown source intact so heading structure
// survives into chunk boundaries, but lifts the first top-level heading out
// as the document title.
func extractMarkdown(name string, data []byte) (Extraction, error) {
	text, err := normalizeText(name, data)
	if err != nil {
		return Extraction{}, err
	}
	if text == "" {
		return Extraction{}, fmt.Errorf("%w: %s contains no text", ErrCorruptFile, name)
	}

	title := baseTitle(name)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if heading, ok := strings.CutPrefix(trimmed, "# "); ok {
			title = strings.TrimSpace(heading)
			break
		}
	}

	return Extraction{
		Format: FormatMarkdown,
		Title:  title,
		Pages:  []Page{{Text: text}},
	}, nil
}
