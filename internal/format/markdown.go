package format

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/doctranslate/internal/document"
)

// MarkdownHandler pages a Markdown file by heading. Each page is the raw source from one
// top-level heading up to the next, so inline markup survives translation.
type MarkdownHandler struct{}

func (h *MarkdownHandler) Read(path string) ([]document.Page, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	return document.NewPages(markdownSections(src)...), nil
}

// PreservesLayout is true: list nesting and indented code depend on leading whitespace.
func (h *MarkdownHandler) PreservesLayout() bool { return true }

// Write emits pages separated by a blank line; translated pages are already Markdown.
func (h *MarkdownHandler) Write(path string, pages []string) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, strings.Join(pages, "\n\n")+"\n")
		return err
	}, nil)
}

func markdownSections(src []byte) []string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	// Byte offsets where each heading line begins.
	var bounds []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}
		seg := heading.Lines().At(0)
		bounds = append(bounds, bytes.LastIndexByte(src[:seg.Start], '\n')+1)
	}

	var sections []string
	add := func(b []byte) {
		if s := strings.TrimSpace(string(b)); s != "" {
			sections = append(sections, s)
		}
	}
	prev := 0
	for _, b := range bounds {
		add(src[prev:b])
		prev = b
	}
	add(src[prev:])
	return sections
}
