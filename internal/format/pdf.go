package format

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	textunicode "golang.org/x/text/encoding/unicode"

	"github.com/dgallion1/doctranslate/internal/document"
)

// ErrMissingGlyphs is returned when the output font cannot draw some of the translated text.
var ErrMissingGlyphs = errors.New("pdf font has no glyphs for some characters")

// PDFHandler reads PDFs with the Go library first, falling back to pdftotext
// if enabled. Output is reflowed plain text on Letter pages.
type PDFHandler struct {
	FallbackPdftotext bool
	Validate          bool
	// FontPath is a TrueType font for output text. Empty uses the embedded Go Regular
	// font, which covers Latin, Greek and Cyrillic.
	FontPath string
}

func (h *PDFHandler) Read(path string) ([]document.Page, error) {
	pages, err := extractPDFPages(path)
	if (err != nil || allBlank(pages)) && h.FallbackPdftotext {
		if text, ferr := extractPdftotext(path); ferr == nil {
			pages, err = strings.Split(strings.TrimRight(text, "\f"), "\f"), nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return document.NewPages(pages...), nil
}

func (h *PDFHandler) Write(path string, pages []string) error {
	var check func(string) error
	if h.Validate {
		check = validatePDF
	}
	font, err := h.font()
	if err != nil {
		return err
	}
	if err := checkGlyphs(font, pages); err != nil {
		return err
	}
	return writeAtomic(path, func(w io.Writer) error {
		return renderPDF(w, pages, font)
	}, check)
}

func (h *PDFHandler) font() ([]byte, error) {
	if h.FontPath == "" {
		return goregular.TTF, nil
	}
	data, err := os.ReadFile(h.FontPath)
	if err != nil {
		return nil, fmt.Errorf("read pdf font: %w", err)
	}
	return data, nil
}

// checkGlyphs fails before anything is written if the font lacks a glyph the text needs.
func checkGlyphs(ttf []byte, pages []string) error {
	f, err := sfnt.Parse(ttf)
	if err != nil {
		return fmt.Errorf("parse pdf font: %w", err)
	}
	var buf sfnt.Buffer
	seen := make(map[rune]bool)
	var missing []rune
	for _, text := range pages {
		for _, r := range text {
			if seen[r] || unicode.IsControl(r) {
				continue
			}
			seen[r] = true
			idx, err := f.GlyphIndex(&buf, r)
			if err != nil || idx == 0 {
				missing = append(missing, r)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sample := missing
	if len(sample) > 10 {
		sample = sample[:10]
	}
	return fmt.Errorf("%w: %d characters including %q; set PDF_FONT to a TrueType font for this script",
		ErrMissingGlyphs, len(missing), string(sample))
}

// extractPDFPages returns one string per page; unreadable pages come back empty
// so numbering matches the source.
func extractPDFPages(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		if text, ok := identityUCSText(page); ok {
			pages = append(pages, text)
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// identityUCSText decodes a page whose fonts all use Identity-H with the single-range
// identity Unicode map gofpdf writes for UTF-8 fonts: every 2-byte code is its own
// UTF-16BE code unit. GetPlainText mis-decodes codes above 0xFF for that map.
func identityUCSText(page pdflib.Page) (string, bool) {
	fonts := page.Fonts()
	if len(fonts) == 0 {
		return "", false
	}
	for _, name := range fonts {
		f := page.Font(name)
		if f.V.Key("Encoding").Name() != "Identity-H" || !isIdentityUCS(f.V.Key("ToUnicode")) {
			return "", false
		}
	}

	dec := textunicode.UTF16(textunicode.BigEndian, textunicode.IgnoreBOM).NewDecoder()
	var b strings.Builder
	lastY, started := 0.0, false
	show := func(raw string) {
		if text, err := dec.String(raw); err == nil {
			b.WriteString(text)
		}
	}
	pdflib.Interpret(page.V.Key("Contents"), func(stk *pdflib.Stack, op string) {
		switch op {
		case "Td", "TD":
			y := stk.Pop().Float64()
			stk.Pop()
			if started && y != lastY {
				b.WriteString("\n")
			}
			lastY, started = y, true
		case "Tj", "'", "\"":
			show(stk.Pop().RawString())
		case "TJ":
			arr := stk.Pop()
			for i := 0; i < arr.Len(); i++ {
				if v := arr.Index(i); v.Kind() == pdflib.String {
					show(v.RawString())
				}
			}
		default:
			for stk.Len() > 0 {
				stk.Pop()
			}
		}
	})
	return b.String(), true
}

func isIdentityUCS(toUnicode pdflib.Value) bool {
	if toUnicode.Kind() != pdflib.Stream {
		return false
	}
	rc := toUnicode.Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "1 beginbfrange\n<0000> <FFFF> <0000>")
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func allBlank(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

const (
	pdfFontSize   = 11
	pdfLineHeight = 5.5
	pdfMargin     = 20
)

// renderPDF lays each translated page out starting on a new sheet; long pages flow onto more sheets.
func renderPDF(w io.Writer, pages []string, ttf []byte) error {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AddUTF8FontFromBytes("body", "", ttf)
	pdf.SetFont("body", "", pdfFontSize)

	if len(pages) == 0 {
		pdf.AddPage()
	}
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, pdfLineHeight, text, "", "L", false)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func validatePDF(path string) error {
	if err := api.ValidateFile(path, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("validate pdf: %w", err)
	}
	return nil
}
