package format

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
	"github.com/gabriel-vasile/mimetype"

	"github.com/dgallion1/doctranslate/internal/document"
)

const DefaultDOCXPageChars = 3000

// ErrLegacyDOC is returned for binary Word 97-2003 files, which go-docx cannot open.
var ErrLegacyDOC = errors.New("legacy binary .doc is not supported; save the file as .docx")

// DOCXHandler reads and writes Office Open XML documents. DOCX has no fixed
// pagination, so paragraphs are grouped into pages of about PageChars characters.
type DOCXHandler struct {
	PageChars int
}

func (h *DOCXHandler) pageChars() int {
	if h.PageChars <= 0 {
		return DefaultDOCXPageChars
	}
	return h.PageChars
}

func (h *DOCXHandler) Read(path string) ([]document.Page, error) {
	if err := checkZipContainer(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat docx: %w", err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if text := docxParagraphText(para); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return document.NewPages(groupParagraphs(paragraphs, h.pageChars())...), nil
}

func (h *DOCXHandler) Write(path string, pages []string) error {
	doc := docx.New().WithDefaultTheme()
	for _, page := range pages {
		for _, line := range nonBlankLines(page) {
			doc.AddParagraph().AddText(line)
		}
	}
	return writeAtomic(path, func(w io.Writer) error {
		if _, err := doc.WriteTo(w); err != nil {
			return fmt.Errorf("write docx: %w", err)
		}
		return nil
	}, nil)
}

// groupParagraphs packs paragraphs into pages; a page closes once adding the next
// paragraph would exceed limit. A single long paragraph becomes its own page.
func groupParagraphs(paragraphs []string, limit int) []string {
	var pages []string
	var current strings.Builder
	currentLen := 0
	for _, p := range paragraphs {
		n := utf8.RuneCountInString(p)
		if currentLen > 0 && currentLen+1+n > limit {
			pages = append(pages, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte('\n')
			currentLen++
		}
		current.WriteString(p)
		currentLen += n
	}
	if currentLen > 0 {
		pages = append(pages, current.String())
	}
	return pages
}

// checkZipContainer rejects files that are not ZIP based, which catches .doc files
// saved in the old OLE format under either extension.
func checkZipContainer(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect file type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return nil
		}
	}
	if mt.Is("application/msword") || mt.Is("application/x-ole-storage") {
		return ErrLegacyDOC
	}
	return fmt.Errorf("parse docx: unexpected content type %s", mt.String())
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
