package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX reads word/document.xml from the zip container and joins
// paragraph text. Tables, headers and embedded objects are ignored; the
// WordprocessingML <w:t> runs carry all the body text.
func extractDOCX(name string, data []byte) (Extraction, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %s: %v", ErrCorruptFile, name, err)
	}

	var docXML io.ReadCloser
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return Extraction{}, fmt.Errorf("%w: %s: %v", ErrCorruptFile, name, err)
			}
			break
		}
	}
	if docXML == nil {
		return Extraction{}, fmt.Errorf("%w: %s has no word/document.xml", ErrCorruptFile, name)
	}
	defer docXML.Close()

	paragraphs, err := docxParagraphs(docXML)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %s: %v", ErrCorruptFile, name, err)
	}

	text := strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
	if text == "" {
		return Extraction{}, fmt.Errorf("%w: %s contains no text", ErrCorruptFile, name)
	}

	return Extraction{
		Format: FormatDOCX,
		Title:  baseTitle(name),
		Pages:  []Page{{Text: text}},
	}, nil
}

// docxParagraphs streams the document XML, collecting <w:t> run text grouped
// by enclosing <w:p> paragraph. <w:tab> and <w:br> become whitespace so words
// do not fuse.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inParagraph := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "t":
				if !inParagraph {
					continue
				}
				var run string
				if err := dec.DecodeElement(&run, &t); err != nil {
					return nil, err
				}
				current.WriteString(run)
			case "tab":
				if inParagraph {
					current.WriteByte('\t')
				}
			case "br":
				if inParagraph {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				if p := strings.TrimSpace(current.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
				inParagraph = false
			}
		}
	}

	return paragraphs, nil
}
