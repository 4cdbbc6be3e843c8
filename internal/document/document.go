package document

import "strings"

// Document is the ordered page sequence extracted from a source file.
type Document struct {
	Title  string // Document title (from metadata or filename)
	Source string // Path the document was read from
	Pages  []Page
}

// Page is one unit of extracted text, typically a physical page or a group of paragraphs.
type Page struct {
	Number int    // 1-based position in the source document
	Text   string // Extracted text, read-only after extraction
}

// NewPages numbers raw page texts starting at 1.
func NewPages(texts ...string) []Page {
	pages := make([]Page, len(texts))
	for i, t := range texts {
		pages[i] = Page{Number: i + 1, Text: t}
	}
	return pages
}

// IsBlank reports whether the page has no printable text.
func (p Page) IsBlank() bool {
	return strings.TrimSpace(p.Text) == ""
}
